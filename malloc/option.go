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
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Strategy selects which free block satisfies a request when several are large enough.
type Strategy uint8

const (
	// BestFit scans every block and picks the smallest large-enough free block.
	// Among equally sized candidates the earliest in list order wins.
	BestFit Strategy = iota

	// FirstFit picks the first large-enough free block in list order.
	FirstFit
)

func (s Strategy) String() string {
	switch s {
	case BestFit:
		return "best-fit"
	case FirstFit:
		return "first-fit"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("malloc: unknown strategy %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Strategy) valid() bool {
	return s == BestFit || s == FirstFit
}

// ParseStrategy accepts "best", "best-fit", "first" and "first-fit", case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "best", "best-fit", "bestfit":
		return BestFit, nil
	case "first", "first-fit", "firstfit":
		return FirstFit, nil
	}
	return 0, fmt.Errorf("malloc: unknown strategy %q", name)
}

const (
	// DefaultPageOrder is the default page order (4KB pages).
	DefaultPageOrder = 12

	// DefaultMinOrder is the default minimum block order (32B blocks, 16B payload).
	DefaultMinOrder = 5

	// MaxPageOrder is the largest supported page order (1MB pages).
	MaxPageOrder = 20

	// minMinOrder is the smallest order whose block is larger than the header.
	minMinOrder = 5
)

// Options configures an Allocator.
type Options struct {
	// PageOrder is log2 of the page size requested from Pages.
	// Each page seeds one top-level block, so it also bounds the largest allocation.
	PageOrder int

	// MinOrder is log2 of the smallest block, header included.
	// 1<<MinOrder must be larger than HeaderSize.
	MinOrder int

	// Strategy is the initial fit strategy. It can be changed later with SetStrategy.
	Strategy Strategy

	// Pages supplies page memory. Nil means OSPages.
	Pages PageSource

	// Logger receives page lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the default values of Options.
func DefaultOptions() *Options {
	return &Options{
		PageOrder: DefaultPageOrder,
		MinOrder:  DefaultMinOrder,
		Strategy:  BestFit,
	}
}

// normalize returns a copy of o with zero fields replaced by defaults, and validates it.
func (o *Options) normalize() (Options, error) {
	c := *DefaultOptions()
	if o != nil {
		c = *o
	}
	if c.PageOrder == 0 {
		c.PageOrder = DefaultPageOrder
	}
	if c.MinOrder == 0 {
		c.MinOrder = DefaultMinOrder
	}
	if c.Pages == nil {
		c.Pages = OSPages{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(discardHandler{})
	}

	if c.MinOrder < minMinOrder {
		return c, fmt.Errorf("malloc: min order must be >= %d (header is %d bytes), got %d",
			minMinOrder, HeaderSize, c.MinOrder)
	}
	if c.PageOrder < c.MinOrder || c.PageOrder > MaxPageOrder {
		return c, fmt.Errorf("malloc: page order must be in [%d, %d], got %d",
			c.MinOrder, MaxPageOrder, c.PageOrder)
	}
	if !c.Strategy.valid() {
		return c, fmt.Errorf("malloc: unknown strategy %d", uint8(c.Strategy))
	}
	return c, nil
}

// discardHandler discards all log output; it mirrors slog.DiscardHandler,
// which is not available before Go 1.24.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
