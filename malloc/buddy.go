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

// Package malloc implements a buddy allocator over page-sized memory regions
// obtained from the operating system.
//
// Every block is 1<<order bytes and starts with a HeaderSize-byte header.
// All blocks of all pages are chained in one traversal list that the fit strategy scans.
// Pages are mapped when no free block fits, and unmapped as soon as all of their blocks
// have coalesced back into one free block.
//
// An Allocator is not safe for concurrent use. Use Locked to share one between goroutines.
package malloc

import (
	"errors"
	"log/slog"
)

// Stats counts allocator events since creation.
type Stats struct {
	Allocs        uint64 `json:"allocs"`
	Frees         uint64 `json:"frees"`
	Reallocs      uint64 `json:"reallocs"`
	Splits        uint64 `json:"splits"`
	Merges        uint64 `json:"merges"`
	PagesMapped   uint64 `json:"pages_mapped"`
	PagesReleased uint64 `json:"pages_released"`
	OutOfMemory   uint64 `json:"out_of_memory"`
}

// Allocator is a buddy allocator. Create one with New.
type Allocator struct {
	// head is the first block of the traversal list.
	head block

	// pages maps page ids used in header links to pages.
	pages map[uint32]*page
	// sorted holds the same pages ordered by base address, for pointer lookup.
	sorted []*page
	lastID uint32

	strategy  Strategy
	pageOrder int
	pageSize  int
	minOrder  int

	src    PageSource
	log    *slog.Logger
	stats  Stats
	closed bool
}

// New creates an allocator. A nil o uses DefaultOptions.
// No page is mapped until the first allocation.
func New(o *Options) (*Allocator, error) {
	c, err := o.normalize()
	if err != nil {
		return nil, err
	}
	return &Allocator{
		pages:     make(map[uint32]*page),
		strategy:  c.Strategy,
		pageOrder: c.PageOrder,
		pageSize:  1 << c.PageOrder,
		minOrder:  c.MinOrder,
		src:       c.Pages,
		log:       c.Logger,
	}, nil
}

// Alloc returns a buffer with len size and cap equal to the payload capacity of the
// block serving it. Alloc(0) returns a non-nil empty buffer that must still be freed.
//
// The returned memory is not zeroed. Do not append beyond cap or reslice the start
// of the buffer before passing it to Free or Realloc.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size > a.MaxAlloc() {
		return nil, ErrTooLarge
	}
	order := a.orderFor(size)

	b := a.findFree(order)
	if b.isNil() {
		var err error
		if b, err = a.mapPage(); err != nil {
			return nil, err
		}
	}
	a.split(b, order)

	h := b.hdr()
	h.used = 1
	h.size = uint32(size)
	a.stats.Allocs++
	return b.payload(size), nil
}

// SetStrategy changes the fit strategy used by later allocations.
func (a *Allocator) SetStrategy(s Strategy) {
	if !s.valid() {
		panic("malloc: unknown strategy")
	}
	a.strategy = s
}

// Strategy returns the active fit strategy.
func (a *Allocator) Strategy() Strategy {
	return a.strategy
}

// PageSize returns the size of each page requested from the page source.
func (a *Allocator) PageSize() int {
	return a.pageSize
}

// MaxAlloc returns the largest size Alloc accepts.
func (a *Allocator) MaxAlloc() int {
	return a.pageSize - HeaderSize
}

// Stats returns a copy of the event counters.
func (a *Allocator) Stats() Stats {
	return a.stats
}

// Close returns every page to the page source, live allocations included.
// The allocator cannot be used afterwards.
func (a *Allocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	for len(a.sorted) > 0 {
		if err := a.unmapPage(a.sorted[0]); err != nil {
			errs = append(errs, err)
		}
	}
	a.head = block{}
	return errors.Join(errs...)
}

// next returns the block following b in the traversal list.
func (a *Allocator) next(b block) block {
	h := b.hdr()
	if h.nextPage == 0 {
		return block{}
	}
	return block{pg: a.pages[h.nextPage], off: int(h.nextOff)}
}

// setNext makes n follow b. A nil b stands for the list head.
func (a *Allocator) setNext(b, n block) {
	if b.isNil() {
		a.head = n
		return
	}
	h := b.hdr()
	if n.isNil() {
		h.nextPage, h.nextOff = 0, 0
		return
	}
	h.nextPage, h.nextOff = n.pg.id, uint32(n.off)
}

// insertAfter links n right after prev, or at the head if prev is nil.
func (a *Allocator) insertAfter(prev, n block) {
	if prev.isNil() {
		a.setNext(n, a.head)
	} else {
		a.setNext(n, a.next(prev))
	}
	a.setNext(prev, n)
}

// unlink removes b from the traversal list.
func (a *Allocator) unlink(b block) {
	var prev block
	for cur := a.head; !cur.isNil(); prev, cur = cur, a.next(cur) {
		if cur == b {
			a.setNext(prev, a.next(cur))
			return
		}
	}
}
