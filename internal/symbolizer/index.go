package symbolizer

import (
	"math"
	"sort"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
)

type indexEntry struct {
	addr uint64
	sym  *linkmap.Symbol
}

// Index answers nearest-preceding-symbol queries over a symbol table. It
// points into the slice it was built from and never modifies it.
type Index struct {
	entries []indexEntry
	limit   uint64 // highest address still covered by the last symbol
}

// NewIndex sorts the symbols by address itself, input order is irrelevant
// except for breaking ties: among symbols sharing an address the one that
// comes first in symbols wins.
func NewIndex(symbols []linkmap.Symbol) *Index {
	entries := make([]indexEntry, len(symbols))
	for i := range symbols {
		entries[i] = indexEntry{addr: symbols[i].Address, sym: &symbols[i]}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].addr < entries[j].addr })

	idx := &Index{entries: entries}
	if n := len(entries); n > 0 {
		last := entries[idx.first(n-1)]
		idx.limit = addSaturating(last.addr, last.sym.Size)
	}
	return idx
}

func (x *Index) Len() int {
	return len(x.entries)
}

// Symbolicate returns the symbol with the greatest address <= addr, or nil
// when addr is below the first symbol or past the end of the last one. The
// returned symbol does not necessarily contain addr.
func (x *Index) Symbolicate(addr uint64) *linkmap.Symbol {
	if len(x.entries) == 0 {
		return nil
	}
	if addr < x.entries[0].addr || addr > x.limit {
		return nil
	}
	// Find greatest entry.addr <= addr
	i := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].addr > addr })
	return x.entries[x.first(i-1)].sym
}

// first walks back from i to the earliest entry with the same address.
func (x *Index) first(i int) int {
	addr := x.entries[i].addr
	return sort.Search(i, func(j int) bool { return x.entries[j].addr >= addr })
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
