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
	"fmt"
	"slices"
	"sort"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/cloudwego/bmalloc/internal/mmap"
)

// PageSource supplies the fixed-size regions that seed top-level blocks.
type PageSource interface {
	// Map returns a read-write region of exactly size bytes.
	Map(size int) ([]byte, error)

	// Unmap returns a region obtained from Map. mem is the original slice.
	Unmap(mem []byte) error
}

// OSPages maps anonymous private memory from the operating system.
type OSPages struct{}

// Map implements PageSource.
func (OSPages) Map(size int) ([]byte, error) { return mmap.Alloc(size) }

// Unmap implements PageSource.
func (OSPages) Unmap(mem []byte) error { return mmap.Free(mem) }

// HeapPages serves pages from the Go heap without zeroing them.
// Unmap drops nothing; the garbage collector reclaims released pages.
type HeapPages struct{}

// Map implements PageSource.
func (HeapPages) Map(size int) ([]byte, error) { return dirtmake.Bytes(size, size), nil }

// Unmap implements PageSource.
func (HeapPages) Unmap([]byte) error { return nil }

type page struct {
	id   uint32
	mem  []byte // as returned by PageSource.Map
	ptr  unsafe.Pointer
	base uintptr
}

func (p *page) root() block {
	return block{pg: p}
}

func (p *page) contains(addr uintptr) bool {
	return addr >= p.base && addr-p.base < uintptr(len(p.mem))
}

// mapPage obtains a page, seeds it with one free root block and links the root at the head.
func (a *Allocator) mapPage() (block, error) {
	mem, err := a.src.Map(a.pageSize)
	if err == nil && len(mem) < a.pageSize {
		err = fmt.Errorf("short page: got %d bytes, want %d", len(mem), a.pageSize)
		if len(mem) > 0 {
			_ = a.src.Unmap(mem)
		}
	}
	if err != nil {
		a.stats.OutOfMemory++
		a.log.Warn("malloc: map page failed", "size", a.pageSize, "pages", len(a.sorted), "error", err)
		return block{}, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	p := &page{
		id:  a.newPageID(),
		mem: mem,
		ptr: unsafe.Pointer(unsafe.SliceData(mem)),
	}
	p.base = uintptr(p.ptr)
	a.pages[p.id] = p
	i := sort.Search(len(a.sorted), func(i int) bool { return a.sorted[i].base > p.base })
	a.sorted = slices.Insert(a.sorted, i, p)

	root := p.root()
	root.init(a.pageOrder)
	a.insertAfter(block{}, root)
	a.stats.PagesMapped++
	a.log.Debug("malloc: page mapped", "page", p.id, "base", fmt.Sprintf("%#x", p.base), "size", a.pageSize)
	return root, nil
}

// unmapPage stops tracking p and returns its memory. p's root must already be unlinked.
func (a *Allocator) unmapPage(p *page) error {
	delete(a.pages, p.id)
	i := sort.Search(len(a.sorted), func(i int) bool { return a.sorted[i].base >= p.base })
	if i < len(a.sorted) && a.sorted[i] == p {
		a.sorted = slices.Delete(a.sorted, i, i+1)
	}
	a.stats.PagesReleased++
	if err := a.src.Unmap(p.mem); err != nil {
		a.log.Error("malloc: unmap page failed", "page", p.id, "base", fmt.Sprintf("%#x", p.base), "error", err)
		return fmt.Errorf("malloc: release page %d: %w", p.id, err)
	}
	a.log.Debug("malloc: page released", "page", p.id, "base", fmt.Sprintf("%#x", p.base))
	return nil
}

// pageOf returns the tracked page containing addr, or nil.
func (a *Allocator) pageOf(addr uintptr) *page {
	i := sort.Search(len(a.sorted), func(i int) bool { return a.sorted[i].base > addr })
	if i == 0 {
		return nil
	}
	if p := a.sorted[i-1]; p.contains(addr) {
		return p
	}
	return nil
}

func (a *Allocator) newPageID() uint32 {
	for {
		a.lastID++
		if a.lastID != 0 && a.pages[a.lastID] == nil {
			return a.lastID
		}
	}
}
