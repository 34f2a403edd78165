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

import "sync"

// Locked wraps an Allocator with a mutex held for the whole of every call,
// so that splits and merges never interleave.
type Locked struct {
	mu sync.Mutex
	a  *Allocator
}

// NewLocked creates a mutex-guarded allocator. A nil o uses DefaultOptions.
func NewLocked(o *Options) (*Locked, error) {
	a, err := New(o)
	if err != nil {
		return nil, err
	}
	return &Locked{a: a}, nil
}

// Alloc is the locked form of Allocator.Alloc.
func (l *Locked) Alloc(size int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Alloc(size)
}

// Free is the locked form of Allocator.Free.
func (l *Locked) Free(buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Free(buf)
}

// Realloc is the locked form of Allocator.Realloc.
func (l *Locked) Realloc(buf []byte, size int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Realloc(buf, size)
}

// SetStrategy is the locked form of Allocator.SetStrategy.
func (l *Locked) SetStrategy(s Strategy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.a.SetStrategy(s)
}

// Strategy is the locked form of Allocator.Strategy.
func (l *Locked) Strategy() Strategy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Strategy()
}

// Report is the locked form of Allocator.Report.
func (l *Locked) Report() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Report()
}

// Stats is the locked form of Allocator.Stats.
func (l *Locked) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Stats()
}

// Close is the locked form of Allocator.Close.
func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Close()
}
