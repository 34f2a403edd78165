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

import "unsafe"

// Realloc resizes buf to size bytes and returns the resized buffer:
//   - a nil buf behaves like Alloc(size)
//   - size 0 frees buf and returns nil
//   - a size needing a smaller block shrinks in place, freeing the upper halves
//   - a size beyond the capacity moves the data to a new block and frees buf
//   - otherwise buf's block is reused with its length adjusted
//
// If a new block cannot be allocated, buf is left valid and unchanged.
// If the move succeeds but releasing buf's page fails, the new buffer is returned
// together with the error; it is live and must still be freed.
func (a *Allocator) Realloc(buf []byte, size int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	p := unsafe.SliceData(buf)
	if p == nil {
		return a.Alloc(size)
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}
	b, err := a.lookup(p)
	if err != nil {
		return nil, err
	}
	a.stats.Reallocs++

	if size == 0 {
		a.stats.Frees++
		return nil, a.release(b)
	}
	if size > b.capacity() {
		return a.move(b, size)
	}
	if order := a.orderFor(size); order < b.order() {
		// each upper half's buddy is the used head, so none of them can merge
		a.split(b, order)
	}
	b.hdr().size = uint32(size)
	return b.payload(size), nil
}

// move copies b's payload into a new block of size bytes and frees b.
func (a *Allocator) move(b block, size int) ([]byte, error) {
	nb, err := a.Alloc(size)
	if err != nil {
		return nil, err
	}
	copy(nb, b.payload(b.capacity()))
	a.stats.Frees++
	return nb, a.release(b)
}
