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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudwego/bmalloc/malloc"
)

func init() {
	rootCmd.AddCommand(newReplayCmd())
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay an allocation trace",
		Long: `The replay command executes a trace file line by line. Use "-" to read stdin.

Trace lines:
  alloc <id> <size>      allocate size bytes and name the buffer id
  realloc <id> <size>    resize buffer id (size 0 frees it)
  free <id>              free buffer id
  strategy best|first    switch the fit strategy
  report                 print the block layout

Blank lines and lines starting with # are ignored. Buffers are filled with a
pattern on allocation and checked on every realloc.

Example:
  bmctl replay workload.trace
  bmctl replay --strategy first --json - < workload.trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.OutOrStdout(), args[0])
		},
	}
}

func runReplay(w io.Writer, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer f.Close()
		r = f
	}

	a, err := newAllocator()
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPlayer(a, w)
	if err := p.run(r); err != nil {
		return err
	}
	fmt.Fprintf(w, "replayed %d operations, %d live buffers, %d pages\n", p.ops, len(p.live), a.Report().Pages)
	return nil
}

// player executes trace lines against an allocator.
type player struct {
	a    *malloc.Allocator
	w    io.Writer
	live map[string][]byte
	ops  int
}

func newPlayer(a *malloc.Allocator, w io.Writer) *player {
	return &player{a: a, w: w, live: make(map[string][]byte)}
}

func (p *player) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.exec(strings.Fields(line)); err != nil {
			return fmt.Errorf("line %d: %q: %w", n, line, err)
		}
	}
	return sc.Err()
}

var errSyntax = errors.New("malformed trace line")

func (p *player) exec(f []string) error {
	switch {
	case f[0] == "alloc" && len(f) == 3:
		size, err := strconv.Atoi(f[2])
		if err != nil {
			return fmt.Errorf("%w: bad size: %w", errSyntax, err)
		}
		if _, ok := p.live[f[1]]; ok {
			return fmt.Errorf("buffer %s is live", f[1])
		}
		b, err := p.a.Alloc(size)
		if err != nil {
			return err
		}
		fill(b, f[1])
		p.live[f[1]] = b

	case f[0] == "realloc" && len(f) == 3:
		size, err := strconv.Atoi(f[2])
		if err != nil {
			return fmt.Errorf("%w: bad size: %w", errSyntax, err)
		}
		old := p.live[f[1]]
		b, err := p.a.Realloc(old, size)
		if err != nil {
			if b != nil {
				// moved, but the old page failed to release
				p.live[f[1]] = b
			} else if size == 0 {
				delete(p.live, f[1])
			}
			return err
		}
		if size == 0 {
			delete(p.live, f[1])
			break
		}
		if !check(b[:min(len(old), size)], f[1]) {
			return fmt.Errorf("buffer %s lost its contents", f[1])
		}
		fill(b, f[1])
		p.live[f[1]] = b

	case f[0] == "free" && len(f) == 2:
		b, ok := p.live[f[1]]
		if !ok {
			return fmt.Errorf("buffer %s is not live", f[1])
		}
		err := p.a.Free(b)
		// a failed page release still frees the block
		delete(p.live, f[1])
		if err != nil {
			return err
		}

	case f[0] == "strategy" && len(f) == 2:
		s, err := malloc.ParseStrategy(f[1])
		if err != nil {
			return err
		}
		p.a.SetStrategy(s)

	case f[0] == "report" && len(f) == 1:
		if err := printReport(p.w, p.a); err != nil {
			return err
		}

	default:
		return errSyntax
	}
	p.ops++
	return nil
}

func pattern(id string, i int) byte {
	return id[i%len(id)] + byte(i)
}

func fill(b []byte, id string) {
	for i := range b {
		b[i] = pattern(id, i)
	}
}

func check(b []byte, id string) bool {
	for i := range b {
		if b[i] != pattern(id, i) {
			return false
		}
	}
	return true
}
