//go:build !unix

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

package mmap

import "github.com/bytedance/gopkg/lang/dirtmake"

// Alloc returns size bytes of heap memory where anonymous mappings are unavailable.
// The memory is not zeroed.
func Alloc(size int) ([]byte, error) {
	return dirtmake.Bytes(size, size), nil
}

// Free is a no-op; the garbage collector reclaims the region once it is unreferenced.
func Free(mem []byte) error {
	return nil
}
