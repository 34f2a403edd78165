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

// Package metrics exports allocator state as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudwego/bmalloc/malloc"
)

// Source is what the collector reads on every scrape.
// Both *malloc.Allocator and *malloc.Locked satisfy it; only the latter may be
// scraped while other goroutines use the allocator.
type Source interface {
	Report() malloc.Snapshot
	Stats() malloc.Stats
}

type gauge struct {
	desc *prometheus.Desc
	val  func(*malloc.Snapshot) int
}

type counter struct {
	desc *prometheus.Desc
	val  func(*malloc.Stats) uint64
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	src      Source
	gauges   []gauge
	counters []counter
	strategy *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector whose metric names are prefixed by namespace.
func NewCollector(src Source, namespace string) *Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "buddy", n) }
	g := func(n, help string, f func(*malloc.Snapshot) int) gauge {
		return gauge{prometheus.NewDesc(name(n), help, nil, nil), f}
	}
	c := func(n, help string, f func(*malloc.Stats) uint64) counter {
		return counter{prometheus.NewDesc(name(n), help, nil, nil), f}
	}
	return &Collector{
		src: src,
		gauges: []gauge{
			g("pages", "Pages currently mapped.", func(s *malloc.Snapshot) int { return s.Pages }),
			g("memory_bytes", "Bytes of all blocks, headers included.", func(s *malloc.Snapshot) int { return s.TotalMemory }),
			g("used_bytes", "Payload bytes of used blocks.", func(s *malloc.Snapshot) int { return s.UsedMemory }),
			g("available_bytes", "Payload bytes of free blocks.", func(s *malloc.Snapshot) int { return s.AvailableMemory }),
			g("fragmentation_bytes", "Payload bytes of used blocks beyond the requested sizes.", func(s *malloc.Snapshot) int { return s.Fragmentation }),
			g("blocks", "Blocks in the traversal list.", func(s *malloc.Snapshot) int { return s.TotalBlocks }),
			g("used_blocks", "Blocks handed out to callers.", func(s *malloc.Snapshot) int { return s.UsedBlocks }),
			g("free_blocks", "Free blocks.", func(s *malloc.Snapshot) int { return s.FreeBlocks }),
		},
		counters: []counter{
			c("allocs_total", "Successful allocations.", func(s *malloc.Stats) uint64 { return s.Allocs }),
			c("frees_total", "Blocks released.", func(s *malloc.Stats) uint64 { return s.Frees }),
			c("reallocs_total", "Reallocations of live blocks.", func(s *malloc.Stats) uint64 { return s.Reallocs }),
			c("splits_total", "Block splits.", func(s *malloc.Stats) uint64 { return s.Splits }),
			c("merges_total", "Buddy merges.", func(s *malloc.Stats) uint64 { return s.Merges }),
			c("pages_mapped_total", "Pages obtained from the page source.", func(s *malloc.Stats) uint64 { return s.PagesMapped }),
			c("pages_released_total", "Pages handed back to the page source.", func(s *malloc.Stats) uint64 { return s.PagesReleased }),
			c("out_of_memory_total", "Allocations that failed to map a page.", func(s *malloc.Stats) uint64 { return s.OutOfMemory }),
		},
		strategy: prometheus.NewDesc(name("strategy"), "Active fit strategy.", []string{"strategy"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
	for _, m := range c.counters {
		ch <- m.desc
	}
	ch <- c.strategy
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.Report()
	st := c.src.Stats()
	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, float64(g.val(&snap)))
	}
	for _, m := range c.counters {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.val(&st)))
	}
	ch <- prometheus.MustNewConstMetric(c.strategy, prometheus.GaugeValue, 1, snap.Strategy.String())
}
