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

package mmap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFree(t *testing.T) {
	sz := os.Getpagesize()
	mem, err := Alloc(sz)
	require.NoError(t, err)
	require.Len(t, mem, sz)

	// anonymous mappings start zeroed and are writable
	assert.Equal(t, byte(0), mem[0])
	assert.Equal(t, byte(0), mem[sz-1])
	mem[0], mem[sz-1] = 0xAA, 0x55
	assert.Equal(t, byte(0xAA), mem[0])
	assert.Equal(t, byte(0x55), mem[sz-1])

	require.NoError(t, Free(mem))
}

func TestAllocInvalidSize(t *testing.T) {
	_, err := Alloc(0)
	assert.Error(t, err)
}
