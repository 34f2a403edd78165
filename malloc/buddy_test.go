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
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFree(t *testing.T) {
	a := newTestAllocator(t, nil)

	b, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Equal(t, 100, len(b))
	assert.Equal(t, 128-HeaderSize, cap(b))
	for i := range b {
		b[i] = byte(i)
	}

	s := a.Report()
	assert.Equal(t, 1, s.Pages)
	assert.Equal(t, 6, s.TotalBlocks)
	assert.Equal(t, 1, s.UsedBlocks)
	assert.Equal(t, 5, s.FreeBlocks)
	assert.Equal(t, 4096, s.TotalMemory)
	assert.Equal(t, 112, s.UsedMemory)
	assert.Equal(t, 3968-5*HeaderSize, s.AvailableMemory)
	assert.Equal(t, 12, s.Fragmentation)

	require.NoError(t, a.Free(b))
	s = a.Report()
	assert.Equal(t, 0, s.Pages)
	assert.Empty(t, s.Blocks)

	st := a.Stats()
	assert.Equal(t, uint64(1), st.Allocs)
	assert.Equal(t, uint64(1), st.Frees)
	assert.Equal(t, uint64(1), st.PagesMapped)
	assert.Equal(t, uint64(1), st.PagesReleased)
	assert.Equal(t, st.Splits, st.Merges)
}

func TestAllocSizes(t *testing.T) {
	a := newTestAllocator(t, nil)

	sizes := []int{1, 15, 16, 17, 100, 1024, 2000, 4000, a.MaxAlloc()}
	for _, sz := range sizes {
		b, err := a.Alloc(sz)
		require.NoError(t, err, "size=%d", sz)
		assert.Equal(t, sz, len(b))
		assert.GreaterOrEqual(t, cap(b), sz)
		require.NoError(t, a.Free(b))
	}
	assert.Equal(t, 0, a.Report().Pages)
}

func TestAllocZero(t *testing.T) {
	a := newTestAllocator(t, nil)

	b, err := a.Alloc(0)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 0, len(b))
	assert.Equal(t, 1<<DefaultMinOrder-HeaderSize, cap(b))
	assert.Equal(t, 1, a.Report().UsedBlocks)

	require.NoError(t, a.Free(b))
	assert.Equal(t, 0, a.Report().Pages)
}

func TestAllocInvalidSize(t *testing.T) {
	a := newTestAllocator(t, nil)

	_, err := a.Alloc(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = a.Alloc(a.MaxAlloc() + 1)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, uint64(0), a.Stats().PagesMapped)

	b, err := a.Alloc(a.MaxAlloc())
	require.NoError(t, err)
	assert.Equal(t, a.MaxAlloc(), cap(b))
	require.NoError(t, a.Free(b))
}

func TestOrderFor(t *testing.T) {
	a := newTestAllocator(t, nil)
	tests := []struct {
		size int
		want int
	}{
		{0, 5},
		{16, 5},
		{17, 6},
		{48, 6},
		{49, 7},
		{100, 7},
		{112, 7},
		{113, 8},
		{1000, 10},
		{4080, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.orderFor(tt.size), "size=%d", tt.size)
		assert.GreaterOrEqual(t, 1<<tt.want-HeaderSize, tt.size)
	}
}

func TestSplitting(t *testing.T) {
	a := newTestAllocator(t, nil)

	b, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Equal(t, 0, offsetOf(t, a, b))

	// each upper half is linked right after the block being split
	assert.Equal(t, []span{
		{0, 7, true},
		{128, 7, false},
		{256, 8, false},
		{512, 9, false},
		{1024, 10, false},
		{2048, 11, false},
	}, layout(a))
	assert.Equal(t, uint64(5), a.Stats().Splits)
}

func TestCoalescing(t *testing.T) {
	a := newTestAllocator(t, nil)

	var bufs [4][]byte
	for i := range bufs {
		b, err := a.Alloc(100)
		require.NoError(t, err)
		bufs[i] = b
	}
	assert.Equal(t, 0, offsetOf(t, a, bufs[0]))
	assert.Equal(t, 128, offsetOf(t, a, bufs[1]))
	assert.Equal(t, 256, offsetOf(t, a, bufs[2]))
	assert.Equal(t, 384, offsetOf(t, a, bufs[3]))

	require.NoError(t, a.Free(bufs[1]))
	// buddy of 128 is the used block at 0: nothing merges
	assert.Equal(t, []span{
		{0, 7, true},
		{128, 7, false},
		{256, 7, true},
		{384, 7, true},
		{512, 9, false},
		{1024, 10, false},
		{2048, 11, false},
	}, layout(a))

	require.NoError(t, a.Free(bufs[0]))
	assert.Equal(t, []span{
		{0, 8, false},
		{256, 7, true},
		{384, 7, true},
		{512, 9, false},
		{1024, 10, false},
		{2048, 11, false},
	}, layout(a))

	require.NoError(t, a.Free(bufs[2]))
	assert.Equal(t, 1, a.Report().Pages)

	// the last free merges all the way up and releases the page
	require.NoError(t, a.Free(bufs[3]))
	assert.Empty(t, layout(a))
	assert.Equal(t, 0, a.Report().Pages)
}

func TestCoalescingCompleteness(t *testing.T) {
	pages := &testPages{src: OSPages{}, limit: -1}
	a := newTestAllocator(t, &Options{Pages: pages})

	// fill one page with minimum blocks
	n := a.PageSize() >> DefaultMinOrder
	bufs := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := a.Alloc(1)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	assert.Equal(t, 1, pages.maps)
	s := a.Report()
	assert.Equal(t, n, s.UsedBlocks)
	assert.Equal(t, 0, s.FreeBlocks)

	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(bufs), func(i, j int) { bufs[i], bufs[j] = bufs[j], bufs[i] })
	for i, b := range bufs {
		require.NoError(t, a.Free(b))
		if i < len(bufs)-1 {
			assert.Equal(t, 0, pages.unmaps)
		}
	}
	assert.Equal(t, 1, pages.unmaps)
	assert.Equal(t, 0, pages.live)
	assert.Empty(t, a.Report().Blocks)
}

func TestBestFitPicksSmallestFit(t *testing.T) {
	a := newTestAllocator(t, &Options{PageOrder: 9})

	x, err := a.Alloc(1) // order 5
	require.NoError(t, err)
	y, err := a.Alloc(40) // order 6
	require.NoError(t, err)
	assert.Equal(t, 0, offsetOf(t, a, x))
	assert.Equal(t, 64, offsetOf(t, a, y))

	// free blocks now have orders {5, 7, 8}
	assert.Equal(t, []span{
		{0, 5, true},
		{32, 5, false},
		{64, 6, true},
		{128, 7, false},
		{256, 8, false},
	}, layout(a))

	// an order 6 request splits the order 7 block, never the order 8 one
	z, err := a.Alloc(40)
	require.NoError(t, err)
	assert.Equal(t, 128, offsetOf(t, a, z))
	assert.Equal(t, []span{
		{0, 5, true},
		{32, 5, false},
		{64, 6, true},
		{128, 6, true},
		{192, 6, false},
		{256, 8, false},
	}, layout(a))
}

func TestFitStrategy(t *testing.T) {
	tests := []struct {
		strategy Strategy
		want     int
	}{
		{BestFit, 384},
		{FirstFit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			a := newTestAllocator(t, &Options{PageOrder: 9})
			big, err := a.Alloc(200) // order 8 at 0
			require.NoError(t, err)
			mid, err := a.Alloc(100) // order 7 at 256
			require.NoError(t, err)
			require.NoError(t, a.Free(big))

			// a larger free block precedes an exact fit in list order
			assert.Equal(t, []span{
				{0, 8, false},
				{256, 7, true},
				{384, 7, false},
			}, layout(a))

			a.SetStrategy(tt.strategy)
			b, err := a.Alloc(100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, offsetOf(t, a, b))

			require.NoError(t, a.Free(b))
			require.NoError(t, a.Free(mid))
			assert.Equal(t, 0, a.Report().Pages)
		})
	}
}

func TestSetStrategyIdempotent(t *testing.T) {
	run := func(times int) Snapshot {
		a := newTestAllocator(t, &Options{PageOrder: 9})
		for i := 0; i < times; i++ {
			a.SetStrategy(FirstFit)
		}
		assert.Equal(t, FirstFit, a.Strategy())
		big, _ := a.Alloc(200)
		_, _ = a.Alloc(100)
		require.NoError(t, a.Free(big))
		_, err := a.Alloc(100)
		require.NoError(t, err)
		return a.Report()
	}
	once, twice := run(1), run(2)
	assert.Equal(t, once.Digest(), twice.Digest())

	a := newTestAllocator(t, nil)
	assert.Panics(t, func() { a.SetStrategy(Strategy(9)) })
	assert.Equal(t, BestFit, a.Strategy())
}

func TestRoundTrip(t *testing.T) {
	a := newTestAllocator(t, nil)

	// keep the first page mapped so its layout can be compared
	hold, err := a.Alloc(1)
	require.NoError(t, err)
	before := a.Report()

	for sz := 0; sz <= a.MaxAlloc(); sz += 37 {
		b, err := a.Alloc(sz)
		require.NoError(t, err, "size=%d", sz)
		require.NoError(t, a.Free(b), "size=%d", sz)
		require.Equal(t, before, a.Report(), "size=%d", sz)
	}
	require.NoError(t, a.Free(hold))
}

func TestNoOverlap(t *testing.T) {
	pages := &testPages{src: OSPages{}, limit: -1}
	a := newTestAllocator(t, &Options{Pages: pages})
	rng := rand.New(rand.NewSource(42))

	type live struct {
		buf []byte
		tag byte
	}
	var bufs []live
	for i := 0; i < 5000; i++ {
		if len(bufs) == 0 || rng.Intn(3) != 0 {
			sz := rng.Intn(a.MaxAlloc() / 4)
			b, err := a.Alloc(sz)
			require.NoError(t, err)
			full := b[:cap(b)]
			for _, l := range bufs {
				require.False(t, overlap(full, l.buf[:cap(l.buf)]))
			}
			tag := byte(i)
			for j := range full {
				full[j] = tag
			}
			bufs = append(bufs, live{buf: b, tag: tag})
		} else {
			idx := rng.Intn(len(bufs))
			require.NoError(t, a.Free(bufs[idx].buf))
			bufs[idx] = bufs[len(bufs)-1]
			bufs = bufs[:len(bufs)-1]
		}
	}

	// no allocation scribbled over another one or over a header
	for _, l := range bufs {
		for _, c := range l.buf[:cap(l.buf)] {
			require.Equal(t, l.tag, c)
		}
		require.NoError(t, a.Free(l.buf))
	}
	assert.Equal(t, 0, pages.live)
	assert.Empty(t, a.Report().Blocks)
}

func TestExhaustion(t *testing.T) {
	pages := &testPages{src: OSPages{}, limit: 3}
	a := newTestAllocator(t, &Options{Pages: pages})

	var bufs [][]byte
	for {
		b, err := a.Alloc(2000) // two per page
		if err != nil {
			assert.ErrorIs(t, err, ErrOutOfMemory)
			assert.ErrorIs(t, err, errNoPages)
			assert.Nil(t, b)
			break
		}
		for i := range b {
			b[i] = byte(len(bufs))
		}
		bufs = append(bufs, b)
	}
	assert.Len(t, bufs, 6)
	assert.Equal(t, uint64(1), a.Stats().OutOfMemory)
	assert.Equal(t, 3, a.Report().Pages)

	for i, b := range bufs {
		for _, c := range b {
			require.Equal(t, byte(i), c)
		}
	}

	// freeing one block makes room again without a new page
	require.NoError(t, a.Free(bufs[0]))
	b, err := a.Alloc(2000)
	require.NoError(t, err)
	assert.Equal(t, 3, pages.maps)
	bufs[0] = b

	for _, b := range bufs {
		require.NoError(t, a.Free(b))
	}
	assert.Equal(t, 0, pages.live)
}

func TestFreeInvalid(t *testing.T) {
	a := newTestAllocator(t, nil)

	assert.NoError(t, a.Free(nil))
	assert.ErrorIs(t, a.Free([]byte{}), ErrInvalidPointer)
	assert.ErrorIs(t, a.Free(make([]byte, 64)), ErrInvalidPointer)

	hold, err := a.Alloc(1000)
	require.NoError(t, err)
	b, err := a.Alloc(100)
	require.NoError(t, err)

	tests := []struct {
		name string
		buf  []byte
	}{
		{"misaligned", b[1:]},
		{"header", hold[16:]},
		{"interior", hold[32:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, a.Free(tt.buf), ErrInvalidPointer)
		})
	}

	// a reslice that keeps the start is fine
	require.NoError(t, a.Free(b[:10]))
	assert.ErrorIs(t, a.Free(b), ErrInvalidPointer, "double free")

	// rejected frees leave the allocator untouched
	s := a.Report()
	assert.Equal(t, 1, s.UsedBlocks)
	assert.Equal(t, 1000, s.Blocks[0].Requested)

	require.NoError(t, a.Free(hold))
	assert.ErrorIs(t, a.Free(hold), ErrInvalidPointer, "page released")
}

func TestFreeMergedBlock(t *testing.T) {
	a := newTestAllocator(t, nil)

	hold, err := a.Alloc(2000) // keeps the page
	require.NoError(t, err)
	lo, err := a.Alloc(100)
	require.NoError(t, err)
	hi, err := a.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, offsetOf(t, a, lo)+128, offsetOf(t, a, hi))

	require.NoError(t, a.Free(lo))
	require.NoError(t, a.Free(hi)) // absorbed into lo's block
	assert.ErrorIs(t, a.Free(hi), ErrInvalidPointer)
	assert.ErrorIs(t, a.Free(lo), ErrInvalidPointer)
	require.NoError(t, a.Free(hold))
}

func TestClose(t *testing.T) {
	pages := &testPages{src: OSPages{}, limit: -1}
	a, err := New(&Options{Pages: pages})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := a.Alloc(3000)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, pages.live)

	require.NoError(t, a.Close())
	assert.Equal(t, 0, pages.live)
	assert.Empty(t, a.Report().Blocks)

	_, err = a.Alloc(1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Free([]byte{1}), ErrClosed)
	_, err = a.Realloc(nil, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, a.Close())
}

func TestUnmapError(t *testing.T) {
	pages := &testPages{src: HeapPages{}, limit: -1, failUnmap: true}
	a := newTestAllocator(t, &Options{Pages: pages})

	b, err := a.Alloc(10)
	require.NoError(t, err)
	err = a.Free(b)
	assert.ErrorIs(t, err, errUnmap)

	// the page is no longer tracked either way
	assert.Equal(t, 0, a.Report().Pages)
	assert.ErrorIs(t, a.Free(b), ErrInvalidPointer)
}

// helpers

var (
	errNoPages = errors.New("test: no pages left")
	errUnmap   = errors.New("test: unmap failed")
)

// testPages counts mappings and fails once limit pages are live (limit < 0 means no limit).
type testPages struct {
	src       PageSource
	limit     int
	failUnmap bool

	live, maps, unmaps int
}

func (p *testPages) Map(size int) ([]byte, error) {
	if p.limit >= 0 && p.live >= p.limit {
		return nil, errNoPages
	}
	mem, err := p.src.Map(size)
	if err != nil {
		return nil, err
	}
	p.live++
	p.maps++
	return mem, nil
}

func (p *testPages) Unmap(mem []byte) error {
	p.live--
	p.unmaps++
	if p.failUnmap {
		return errUnmap
	}
	return p.src.Unmap(mem)
}

type span struct {
	off   int
	order int
	used  bool
}

func layout(a *Allocator) []span {
	var ret []span
	for _, b := range a.Report().Blocks {
		ret = append(ret, span{b.Offset, b.Order, b.Used})
	}
	return ret
}

func offsetOf(t *testing.T, a *Allocator, buf []byte) int {
	t.Helper()
	b, err := a.lookup(unsafe.SliceData(buf))
	require.NoError(t, err)
	return b.off
}

func newTestAllocator(t *testing.T, o *Options) *Allocator {
	t.Helper()
	a, err := New(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func overlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart := uintptr(unsafe.Pointer(&a[0]))
	aEnd := aStart + uintptr(len(a))
	bStart := uintptr(unsafe.Pointer(&b[0]))
	bEnd := bStart + uintptr(len(b))
	return !(aEnd <= bStart || bEnd <= aStart)
}

// benchmarks

func BenchmarkAllocFree(b *testing.B) {
	a, _ := New(nil)
	defer a.Close()
	hold, _ := a.Alloc(1) // avoid mapping a page per iteration
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := a.Alloc(100)
		if err == nil {
			_ = a.Free(buf)
		}
	}
	b.StopTimer()
	_ = a.Free(hold)
}

func BenchmarkAllocSizes(b *testing.B) {
	for _, s := range []Strategy{BestFit, FirstFit} {
		b.Run(s.String(), func(b *testing.B) {
			a, _ := New(&Options{Strategy: s})
			defer a.Close()
			sizes := []int{16, 100, 500, 1000, 2000}
			bufs := make([][]byte, 0, 64)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf, err := a.Alloc(sizes[i%len(sizes)])
				if err == nil {
					bufs = append(bufs, buf)
				}
				if len(bufs) == cap(bufs) {
					for _, buf := range bufs {
						_ = a.Free(buf)
					}
					bufs = bufs[:0]
				}
			}
		})
	}
}
