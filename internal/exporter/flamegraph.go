package exporter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
)

// Granularity selects how deep folded size stacks go.
type Granularity int

const (
	_ Granularity = iota
	Sections
	Objects
	Symbols
)

// BuildFoldedSizes aggregates symbol sizes into folded stacks of the form
// "section;library;object;symbol", cut at the requested granularity. Values
// are bytes.
func BuildFoldedSizes(m *linkmap.Map, depth Granularity) map[string]uint64 {
	agg := make(map[string]uint64)
	for i := range m.Symbols {
		sym := &m.Symbols[i]
		if sym.Size == 0 {
			continue
		}
		obj := m.ObjectOf(sym)

		names := []string{m.SectionOf(sym).String()}
		if depth >= Objects {
			if obj.Library != "" {
				names = append(names, obj.Library)
			}
			names = append(names, obj.File)
		}
		if depth >= Symbols {
			names = append(names, sym.Name)
		}
		for j, name := range names {
			names[j] = foldedFrame(name)
		}
		agg[strings.Join(names, ";")] += sym.Size
	}
	return agg
}

// foldedFrames makes names safe to use as frames: ';' separates frames and
// '\n' separates stacks.
var foldedFrames = strings.NewReplacer(";", "_", "\n", " ")

func foldedFrame(name string) string {
	if name = strings.TrimSpace(foldedFrames.Replace(name)); name != "" {
		return name
	}
	return "<unknown>"
}

type foldedStack struct {
	stack string
	bytes uint64
}

// bySize orders stacks largest first, then by stack for equal sizes.
func bySize(agg map[string]uint64) []foldedStack {
	stacks := make([]foldedStack, 0, len(agg))
	for stack, n := range agg {
		stacks = append(stacks, foldedStack{stack, n})
	}
	sort.Slice(stacks, func(i, j int) bool {
		if stacks[i].bytes != stacks[j].bytes {
			return stacks[i].bytes > stacks[j].bytes
		}
		return stacks[i].stack < stacks[j].stack
	})
	return stacks
}

// WriteFoldedStacks writes one "stack bytes" line per entry, largest first.
func WriteFoldedStacks(agg map[string]uint64, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, s := range bySize(agg) {
		if _, err := fmt.Fprintf(bw, "%s %d\n", s.stack, s.bytes); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func WriteFoldedStacksToFile(agg map[string]uint64, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteFoldedStacks(agg, f); err != nil {
		f.Close()
		return fmt.Errorf("writing folded stacks to %s: %w", filename, err)
	}
	return f.Close()
}
