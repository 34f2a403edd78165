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

// Package report renders malloc.Snapshot values for humans and tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/bytedance/gopkg/lang/mcache"

	"github.com/cloudwego/bmalloc/malloc"
)

const (
	listTitle = "==================== block list ===================="
	listRule  = "===================================================="

	// rough bytes per rendered block line, used to size the buffer
	lineSize = 48
)

// Fprint writes s as a block table followed by totals:
//
//	  0:0x7f3a2c000010:1     1024:    1008
//	...
//	Total amount of memory: 4096
//
// Each line is index:payload address:used, then block size and payload capacity.
func Fprint(w io.Writer, s malloc.Snapshot) error {
	buf := mcache.Malloc(0, (len(s.Blocks)+12)*lineSize)
	defer func() { mcache.Free(buf) }()

	buf = append(buf, listTitle...)
	buf = append(buf, '\n')
	for _, b := range s.Blocks {
		buf = fmt.Appendf(buf, "%3d:%#x:%d %8d:%8d\n", b.Index, b.Addr, used(b.Used), b.Size, b.Payload)
	}
	buf = append(buf, listRule...)
	buf = append(buf, '\n')

	buf = total(buf, "Fit strategy", s.Strategy.String())
	buf = total(buf, "Number of pages", strconv.Itoa(s.Pages))
	buf = total(buf, "Total amount of memory", strconv.Itoa(s.TotalMemory))
	buf = total(buf, "Total amount of memory given to users", strconv.Itoa(s.UsedMemory))
	buf = total(buf, "Total amount of available memory", strconv.Itoa(s.AvailableMemory))
	buf = total(buf, "Total amount of internal fragmentation", strconv.Itoa(s.Fragmentation))
	buf = total(buf, "Total number of blocks", strconv.Itoa(s.TotalBlocks))
	buf = total(buf, "Total number of used blocks", strconv.Itoa(s.UsedBlocks))
	buf = total(buf, "Total number of available blocks", strconv.Itoa(s.FreeBlocks))

	_, err := w.Write(buf)
	return err
}

// FprintJSON writes s as indented JSON, including its layout digest.
func FprintJSON(w io.Writer, s malloc.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		malloc.Snapshot
		Digest string `json:"digest"`
	}{s, fmt.Sprintf("%016x", s.Digest())})
}

func total(buf []byte, name, v string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ": "...)
	buf = append(buf, v...)
	return append(buf, '\n')
}

func used(b bool) int {
	if b {
		return 1
	}
	return 0
}
