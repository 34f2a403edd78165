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
	"encoding/binary"

	"github.com/bytedance/gopkg/util/xxhash3"
)

// BlockInfo describes one block of the traversal list.
type BlockInfo struct {
	Index     int     `json:"index"`
	Addr      uintptr `json:"addr"` // payload address
	Page      uint32  `json:"page"`
	Offset    int     `json:"offset"` // header offset within the page
	Order     int     `json:"order"`
	Used      bool    `json:"used"`
	Size      int     `json:"size"`      // block bytes, header included
	Payload   int     `json:"payload"`   // payload capacity
	Requested int     `json:"requested"` // bytes asked for, 0 if free
}

// Snapshot is a point-in-time view of the allocator, in traversal list order.
type Snapshot struct {
	Strategy Strategy    `json:"strategy"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
	Blocks   []BlockInfo `json:"blocks"`

	TotalMemory     int `json:"total_memory"`     // bytes of all blocks
	UsedMemory      int `json:"used_memory"`      // payload capacity of used blocks
	AvailableMemory int `json:"available_memory"` // payload capacity of free blocks
	Fragmentation   int `json:"fragmentation"`    // payload capacity minus requested bytes of used blocks

	TotalBlocks int `json:"total_blocks"`
	UsedBlocks  int `json:"used_blocks"`
	FreeBlocks  int `json:"free_blocks"`
}

// Report walks the traversal list. It does not modify the allocator.
func (a *Allocator) Report() Snapshot {
	s := Snapshot{
		Strategy: a.strategy,
		PageSize: a.pageSize,
		Pages:    len(a.sorted),
	}
	for b := a.head; !b.isNil(); b = a.next(b) {
		h := b.hdr()
		bi := BlockInfo{
			Index:     len(s.Blocks),
			Addr:      b.addr(),
			Page:      b.pg.id,
			Offset:    b.off,
			Order:     int(h.order),
			Used:      h.used != 0,
			Size:      1 << h.order,
			Payload:   b.capacity(),
			Requested: int(h.size),
		}
		s.Blocks = append(s.Blocks, bi)

		s.TotalBlocks++
		s.TotalMemory += bi.Size
		if bi.Used {
			s.UsedBlocks++
			s.UsedMemory += bi.Payload
			s.Fragmentation += bi.Payload - bi.Requested
		} else {
			s.FreeBlocks++
			s.AvailableMemory += bi.Payload
		}
	}
	return s
}

// Digest fingerprints the block layout (page, offset, order, used) of s.
// Two snapshots with equal digests have the same blocks in the same list order.
func (s Snapshot) Digest() uint64 {
	buf := make([]byte, 0, len(s.Blocks)*10)
	for _, b := range s.Blocks {
		buf = binary.LittleEndian.AppendUint32(buf, b.Page)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(b.Offset))
		used := byte(0)
		if b.Used {
			used = 1
		}
		buf = append(buf, byte(b.Order), used)
	}
	return xxhash3.Hash(buf)
}
