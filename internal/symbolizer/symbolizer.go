package symbolizer

import (
	"fmt"
	"log/slog"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
)

// Frame is a resolved address together with everything the map knows about
// the symbol it falls to.
type Frame struct {
	Addr       uint64
	Name       string
	SymbolAddr uint64
	Offset     uint64 // Addr - SymbolAddr
	Size       uint64
	Object     string
	Library    string
	Segment    string
	Section    string
}

func (f Frame) String() string {
	obj := f.Object
	if f.Library != "" {
		obj = fmt.Sprintf("%s(%s)", f.Library, f.Object)
	}
	return fmt.Sprintf("0x%x %s+0x%x (%s) %s,%s", f.Addr, f.Name, f.Offset, obj, f.Segment, f.Section)
}

type Symbolizer struct {
	m     *linkmap.Map
	index *Index
}

func New(m *linkmap.Map) *Symbolizer {
	idx := NewIndex(m.Symbols)
	if !m.SymbolsSorted() {
		slog.Info("Symbol table is not in address order, relying on index sort")
	}
	slog.Info("Built symbol index", "symbols", idx.Len(), "objects", len(m.Objects), "sections", len(m.Sections))
	return &Symbolizer{m: m, index: idx}
}

func (s *Symbolizer) Map() *linkmap.Map {
	return s.m
}

func (s *Symbolizer) Resolve(addr uint64) (Frame, bool) {
	sym := s.index.Symbolicate(addr)
	if sym == nil {
		return Frame{Addr: addr}, false
	}
	obj := s.m.ObjectOf(sym)
	sect := s.m.SectionOf(sym)
	return Frame{
		Addr:       addr,
		Name:       sym.Name,
		SymbolAddr: sym.Address,
		Offset:     addr - sym.Address,
		Size:       sym.Size,
		Object:     obj.File,
		Library:    obj.Library,
		Segment:    sect.Segment,
		Section:    sect.Name,
	}, true
}

// Symbolize resolves addrs in order. Addresses outside the mapped range are
// skipped.
func (s *Symbolizer) Symbolize(addrs []uint64) []Frame {
	frames := make([]Frame, 0, len(addrs))
	for _, addr := range addrs {
		f, ok := s.Resolve(addr)
		if !ok {
			slog.Warn("Address outside mapped symbols - skipping", "addr", fmt.Sprintf("0x%x", addr))
			continue
		}
		frames = append(frames, f)
	}
	return frames
}
