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

import "math/bits"

// orderFor returns the smallest order whose block holds size payload bytes plus the header.
func (a *Allocator) orderFor(size int) int {
	need := size + HeaderSize
	if need <= 1<<a.minOrder {
		return a.minOrder
	}
	return bits.Len(uint(need - 1))
}

// findFree returns a free block of at least the given order chosen by the active strategy,
// or the nil block if none exists.
func (a *Allocator) findFree(order int) block {
	if a.strategy == FirstFit {
		return a.firstFit(order)
	}
	return a.bestFit(order)
}

func (a *Allocator) bestFit(order int) block {
	var best block
	bestOrder := a.pageOrder + 1
	for b := a.head; !b.isNil(); b = a.next(b) {
		h := b.hdr()
		if h.used != 0 || int(h.order) < order || int(h.order) >= bestOrder {
			continue
		}
		best, bestOrder = b, int(h.order)
		if bestOrder == order {
			break // nothing smaller can fit, and the earliest match wins ties
		}
	}
	return best
}

func (a *Allocator) firstFit(order int) block {
	for b := a.head; !b.isNil(); b = a.next(b) {
		if h := b.hdr(); h.used == 0 && int(h.order) >= order {
			return b
		}
	}
	return block{}
}
