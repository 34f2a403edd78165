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

// split halves b until it reaches order. Every upper half becomes a free block
// linked right after b, so the list never holds an untracked half.
func (a *Allocator) split(b block, order int) {
	h := b.hdr()
	for int(h.order) > order {
		h.order--
		half := block{pg: b.pg, off: b.off + 1<<h.order}
		half.init(int(h.order))
		a.insertAfter(b, half)
		a.stats.Splits++
	}
}
