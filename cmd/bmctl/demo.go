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
	"strings"

	"github.com/spf13/cobra"
)

// demoTrace fits the default 4KB pages: it splits one page, spills into a
// second, frees and merges back to nothing.
const demoTrace = `
alloc a 100
alloc b 2000
alloc c 30
alloc d 500
report
free c
realloc d 50
realloc a 700
report
strategy first
alloc e 16
alloc f 1500
report
free a
free b
free d
free e
free f
report
`

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted workload and print the layout after each phase",
		Long: `The demo command allocates, resizes and frees a handful of buffers,
printing the block list between phases. The script is:
` + demoTrace,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout())
		},
	}
}

func runDemo(w io.Writer) error {
	a, err := newAllocator()
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPlayer(a, w)
	if err := p.run(strings.NewReader(demoTrace)); err != nil {
		return fmt.Errorf("demo failed: %w", err)
	}
	st := a.Stats()
	fmt.Fprintf(w, "allocs=%d frees=%d reallocs=%d splits=%d merges=%d pages mapped=%d released=%d\n",
		st.Allocs, st.Frees, st.Reallocs, st.Splits, st.Merges, st.PagesMapped, st.PagesReleased)
	return nil
}
