package symbolizer

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
)

// naiveSymbolicate walks down one address at a time until it hits a symbol.
// It is only fit for small address ranges and serves as a reference.
func naiveSymbolicate(symbols []linkmap.Symbol, addr uint64) *linkmap.Symbol {
	if len(symbols) == 0 {
		return nil
	}
	byAddr := make(map[uint64]*linkmap.Symbol)
	minAddr := uint64(math.MaxUint64)
	var last *linkmap.Symbol
	for i := range symbols {
		s := &symbols[i]
		if _, ok := byAddr[s.Address]; !ok {
			byAddr[s.Address] = s
		}
		if s.Address < minAddr {
			minAddr = s.Address
		}
		if last == nil || s.Address > last.Address {
			last = s
		}
	}
	if addr < minAddr || addr > last.Address+last.Size {
		return nil
	}
	for a := addr; ; a-- {
		if s, ok := byAddr[a]; ok {
			return s
		}
		if a == 0 {
			return nil
		}
	}
}

func TestIndex_RangeBoundaries(t *testing.T) {
	symbols := []linkmap.Symbol{
		{Address: 100, Size: 10, Name: "a"},
		{Address: 200, Size: 5, Name: "b"},
	}
	idx := NewIndex(symbols)

	tests := []struct {
		addr uint64
		want string // empty means no symbol
	}{
		{addr: 0},
		{addr: 50},
		{addr: 99},
		{addr: 100, want: "a"},
		{addr: 109, want: "a"},
		{addr: 110, want: "a"},
		{addr: 150, want: "a"}, // past the end of a but before b
		{addr: 199, want: "a"},
		{addr: 200, want: "b"},
		{addr: 204, want: "b"},
		{addr: 205, want: "b"},
		{addr: 206},
		{addr: math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("addr=%d", tt.addr), func(t *testing.T) {
			got := idx.Symbolicate(tt.addr)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected no symbol for %d, got %+v", tt.addr, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected symbol %q for %d, got nil", tt.want, tt.addr)
			}
			if got.Name != tt.want {
				t.Fatalf("expected symbol %q for %d, got %q", tt.want, tt.addr, got.Name)
			}
		})
	}
}

func TestIndex_ReturnsReferencesIntoInput(t *testing.T) {
	symbols := []linkmap.Symbol{{Address: 0x10, Size: 4, Name: "only"}}
	idx := NewIndex(symbols)
	if got := idx.Symbolicate(0x12); got != &symbols[0] {
		t.Fatalf("expected pointer to the input symbol, got %p want %p", got, &symbols[0])
	}
}

func TestIndex_Empty(t *testing.T) {
	idx := NewIndex(nil)
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d entries", idx.Len())
	}
	for _, addr := range []uint64{0, 1, math.MaxUint64} {
		if got := idx.Symbolicate(addr); got != nil {
			t.Fatalf("expected nil from empty index for %d, got %+v", addr, got)
		}
	}
}

func TestIndex_TieBreakPrefersInputOrder(t *testing.T) {
	symbols := []linkmap.Symbol{
		{Address: 0x30, Size: 0x10, Name: "later"},
		{Address: 0x20, Size: 0x8, Name: "alias_first"},
		{Address: 0x20, Size: 0x8, Name: "alias_second"},
		{Address: 0x30, Size: 0x1, Name: "later_alias"},
	}
	idx := NewIndex(symbols)

	if got := idx.Symbolicate(0x24); got == nil || got.Name != "alias_first" {
		t.Fatalf("expected alias_first, got %+v", got)
	}
	if got := idx.Symbolicate(0x30); got == nil || got.Name != "later" {
		t.Fatalf("expected later, got %+v", got)
	}
	// the tie winner at the highest address decides the upper bound
	if got := idx.Symbolicate(0x40); got == nil || got.Name != "later" {
		t.Fatalf("expected later at upper bound, got %+v", got)
	}
	if got := idx.Symbolicate(0x41); got != nil {
		t.Fatalf("expected nil past upper bound, got %+v", got)
	}
}

func TestIndex_SortednessIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	// unique addresses so that shuffling cannot change tie-breaks
	var sorted []linkmap.Symbol
	addr := uint64(0x1000)
	for i := 0; i < 500; i++ {
		addr += uint64(1 + rng.Intn(16))
		sorted = append(sorted, linkmap.Symbol{Address: addr, Size: uint64(rng.Intn(12)), Name: fmt.Sprintf("sym_%d", i)})
	}
	shuffled := make([]linkmap.Symbol, len(sorted))
	copy(shuffled, sorted)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	sortedIdx := NewIndex(sorted)
	shuffledIdx := NewIndex(shuffled)

	lo := sorted[0].Address - 8
	hi := sorted[len(sorted)-1].Address + sorted[len(sorted)-1].Size + 8
	for a := lo; a <= hi; a++ {
		want := naiveSymbolicate(sorted, a)
		got1 := sortedIdx.Symbolicate(a)
		got2 := shuffledIdx.Symbolicate(a)
		if name(want) != name(got1) || name(want) != name(got2) {
			t.Fatalf("addr 0x%x: naive=%q sorted=%q shuffled=%q", a, name(want), name(got1), name(got2))
		}
	}
}

func TestIndex_MatchesNaiveWithDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var symbols []linkmap.Symbol
	for i := 0; i < 200; i++ {
		symbols = append(symbols, linkmap.Symbol{
			Address: uint64(0x100 + rng.Intn(0x400)),
			Size:    uint64(rng.Intn(8)),
			Name:    fmt.Sprintf("s%d", i),
		})
	}
	idx := NewIndex(symbols)
	for a := uint64(0); a < 0x600; a++ {
		want := naiveSymbolicate(symbols, a)
		got := idx.Symbolicate(a)
		if want != got {
			t.Fatalf("addr 0x%x: naive=%q index=%q", a, name(want), name(got))
		}
	}
}

func TestAddSaturating(t *testing.T) {
	if got := addSaturating(math.MaxUint64-1, 10); got != math.MaxUint64 {
		t.Fatalf("expected saturation, got %d", got)
	}
	if got := addSaturating(1, 2); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func name(s *linkmap.Symbol) string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}
