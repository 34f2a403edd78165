/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package malloc

import "errors"

var (
	// ErrOutOfMemory is returned when no free block fits and the page source cannot supply a new page.
	ErrOutOfMemory = errors.New("malloc: out of memory")

	// ErrInvalidPointer is returned when a buffer does not refer to a live block of this allocator.
	// A double free is reported the same way.
	ErrInvalidPointer = errors.New("malloc: invalid pointer")

	// ErrInvalidSize is returned for negative sizes.
	ErrInvalidSize = errors.New("malloc: invalid size")

	// ErrTooLarge is returned when the request plus header does not fit in one page.
	ErrTooLarge = errors.New("malloc: size exceeds page capacity")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("malloc: allocator closed")
)
