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

const (
	// HeaderSize is the size of the header stored at the start of every block.
	HeaderSize = 16

	// headerMagic marks a live header. It is cleared when a merge absorbs the block.
	headerMagic uint16 = 0xB0DD
)

// header is stored inline at the lowest address of each block.
//
// The traversal list is linked through (nextPage, nextOff) instead of raw addresses,
// so a link is always resolved against a tracked page.
type header struct {
	magic    uint16
	order    uint8  // block size is 1<<order, header included
	used     uint8  // 1 if handed out
	size     uint32 // requested payload bytes while used
	nextPage uint32 // id of the page holding the next block, 0 terminates the list
	nextOff  uint32 // offset of the next block within that page
}

// header must be exactly HeaderSize bytes.
var (
	_ [HeaderSize - unsafe.Sizeof(header{})]struct{}
	_ [unsafe.Sizeof(header{}) - HeaderSize]struct{}
)

// block addresses a block by its page and the byte offset of its header within the page.
// The zero value is the nil block.
type block struct {
	pg  *page
	off int
}

func (b block) isNil() bool {
	return b.pg == nil
}

func (b block) hdr() *header {
	return (*header)(unsafe.Add(b.pg.ptr, b.off))
}

func (b block) order() int {
	return int(b.hdr().order)
}

func (b block) capacity() int {
	return 1<<b.order() - HeaderSize
}

// init writes a fresh free header of the given order. The link is left empty.
func (b block) init(order int) {
	*b.hdr() = header{magic: headerMagic, order: uint8(order)}
}

// buddy returns the block sharing b's parent. Only valid if b is not a page root.
func (b block) buddy() block {
	return block{pg: b.pg, off: b.off ^ (1 << b.order())}
}

// payload returns the bytes following the header, with len n and cap set to the capacity.
func (b block) payload(n int) []byte {
	c := b.capacity()
	p := (*byte)(unsafe.Add(b.pg.ptr, b.off+HeaderSize))
	return unsafe.Slice(p, c)[:n:c]
}

// addr returns the payload address handed to callers.
func (b block) addr() uintptr {
	return b.pg.base + uintptr(b.off+HeaderSize)
}
