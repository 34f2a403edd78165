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

import (
	"errors"
	"unsafe"
)

// Free returns buf to the allocator. buf must be a buffer returned by Alloc or Realloc,
// possibly resliced to a different length but not a different start.
// Freeing a nil buffer does nothing.
//
// The block is merged with its buddy as long as both are free and the same size,
// and every page that becomes a single free block is released immediately.
func (a *Allocator) Free(buf []byte) error {
	if a.closed {
		return ErrClosed
	}
	p := unsafe.SliceData(buf)
	if p == nil {
		return nil
	}
	b, err := a.lookup(p)
	if err != nil {
		return err
	}
	a.stats.Frees++
	return a.release(b)
}

// lookup maps a payload pointer back to its block, rejecting anything
// that is not the start of a live block in a tracked page.
func (a *Allocator) lookup(p *byte) (block, error) {
	addr := uintptr(unsafe.Pointer(p))
	pg := a.pageOf(addr)
	if pg == nil {
		return block{}, ErrInvalidPointer
	}
	off := int(addr-pg.base) - HeaderSize
	if off < 0 || off&(1<<a.minOrder-1) != 0 {
		return block{}, ErrInvalidPointer
	}
	b := block{pg: pg, off: off}
	h := b.hdr()
	if h.magic != headerMagic || h.used == 0 {
		return block{}, ErrInvalidPointer
	}
	if k := int(h.order); k < a.minOrder || k > a.pageOrder || off&(1<<k-1) != 0 {
		return block{}, ErrInvalidPointer
	}
	return b, nil
}

// release marks b free, coalesces it and releases pages that became empty.
func (a *Allocator) release(b block) error {
	h := b.hdr()
	h.used = 0
	h.size = 0
	a.coalesce(b)
	return a.releasePages()
}

// coalesce merges b with its buddy while the buddy is free and of the same order.
// The lower block of each pair survives in its own list position and the upper one
// is unlinked. It returns the final merged block.
func (a *Allocator) coalesce(b block) block {
	for b.order() < a.pageOrder {
		buddy := b.buddy()
		bh := buddy.hdr()
		if bh.used != 0 || int(bh.order) != b.order() {
			break
		}
		lo, hi := b, buddy
		if buddy.off < b.off {
			lo, hi = buddy, b
		}
		a.unlink(hi)
		hi.hdr().magic = 0
		lo.hdr().order++
		a.stats.Merges++
		b = lo
	}
	return b
}

// releasePages unlinks every free page-sized block and returns its page.
func (a *Allocator) releasePages() error {
	var (
		errs []error
		prev block
	)
	for cur := a.head; !cur.isNil(); {
		next := a.next(cur)
		if h := cur.hdr(); h.used == 0 && int(h.order) == a.pageOrder {
			a.setNext(prev, next)
			h.magic = 0
			if err := a.unmapPage(cur.pg); err != nil {
				errs = append(errs, err)
			}
		} else {
			prev = cur
		}
		cur = next
	}
	return errors.Join(errs...)
}
