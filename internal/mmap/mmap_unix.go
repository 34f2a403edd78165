//go:build unix

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

// Package mmap maps and unmaps anonymous memory regions used as allocator pages.
package mmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Alloc maps size bytes of anonymous, private, read-write memory.
// size should be a multiple of the OS page size.
func Alloc(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap: map %d bytes: %w", size, err)
	}
	return mem, nil
}

// Free unmaps a region returned by Alloc. It must be the original slice, not a reslice.
func Free(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("mmap: unmap %d bytes: %w", len(mem), err)
	}
	return nil
}
