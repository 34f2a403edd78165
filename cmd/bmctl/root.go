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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudwego/bmalloc/malloc"
	"github.com/cloudwego/bmalloc/report"
)

var (
	// Global flags
	pageOrder    int
	minOrder     int
	strategyName string
	heapPages    bool
	jsonOut      bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "bmctl",
	Short: "Exercise and inspect a buddy allocator",
	Long: `bmctl runs allocation workloads against a buddy allocator backed by
operating system pages and prints the resulting block layout.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&pageOrder, "page-order", malloc.DefaultPageOrder, "log2 of the page size")
	rootCmd.PersistentFlags().IntVar(&minOrder, "min-order", malloc.DefaultMinOrder, "log2 of the smallest block, header included")
	rootCmd.PersistentFlags().StringVar(&strategyName, "strategy", "best", "fit strategy: best or first")
	rootCmd.PersistentFlags().BoolVar(&heapPages, "heap", false, "take pages from the Go heap instead of mmap")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output reports in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log page activity to stderr")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newAllocator builds an allocator from the global flags.
func newAllocator() (*malloc.Allocator, error) {
	s, err := malloc.ParseStrategy(strategyName)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	o := &malloc.Options{
		PageOrder: pageOrder,
		MinOrder:  minOrder,
		Strategy:  s,
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
	if heapPages {
		o.Pages = malloc.HeapPages{}
	}
	return malloc.New(o)
}

// printReport writes the allocator layout in the format selected by --json.
func printReport(w io.Writer, a *malloc.Allocator) error {
	if jsonOut {
		return report.FprintJSON(w, a.Report())
	}
	return report.Fprint(w, a.Report())
}
