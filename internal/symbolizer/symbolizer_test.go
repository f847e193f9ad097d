package symbolizer

import (
	"testing"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
)

const testMap = `# Object files:
[  0] linker synthesized
[  1] /build/main.o
[  2] /build/libutil.a(strings.o)
# Sections:
# Address	Size    	Segment	Section
0x1000	0x100	__TEXT	__text
0x2000	0x40	__DATA	__data
# Symbols:
# Address	Size    	File  Name
0x1040	0x20	[  2] _util_strlen
0x1000	0x40	[  1] _main
0x2000	0x8	[  0] ___dso_handle
# Dead Stripped Symbols:
`

func newTestSymbolizer(t *testing.T) *Symbolizer {
	t.Helper()
	m, err := linkmap.Parse([]byte(testMap))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return New(m)
}

func TestSymbolizer_Resolve(t *testing.T) {
	s := newTestSymbolizer(t)

	tests := []struct {
		name   string
		addr   uint64
		want   Frame
		wantOK bool
	}{
		{
			name:   "start_of_symbol",
			addr:   0x1000,
			want:   Frame{Addr: 0x1000, Name: "_main", SymbolAddr: 0x1000, Offset: 0, Size: 0x40, Object: "main.o", Segment: "__TEXT", Section: "__text"},
			wantOK: true,
		},
		{
			name:   "inside_archive_member",
			addr:   0x1050,
			want:   Frame{Addr: 0x1050, Name: "_util_strlen", SymbolAddr: 0x1040, Offset: 0x10, Size: 0x20, Object: "strings.o", Library: "libutil.a", Segment: "__TEXT", Section: "__text"},
			wantOK: true,
		},
		{
			name:   "gap_between_sections_resolves_to_preceding",
			addr:   0x1800,
			want:   Frame{Addr: 0x1800, Name: "_util_strlen", SymbolAddr: 0x1040, Offset: 0x7c0, Size: 0x20, Object: "strings.o", Library: "libutil.a", Segment: "__TEXT", Section: "__text"},
			wantOK: true,
		},
		{
			name:   "end_of_last_symbol",
			addr:   0x2008,
			want:   Frame{Addr: 0x2008, Name: "___dso_handle", SymbolAddr: 0x2000, Offset: 0x8, Size: 0x8, Object: "linker synthesized", Segment: "__DATA", Section: "__data"},
			wantOK: true,
		},
		{name: "below_range", addr: 0xfff, want: Frame{Addr: 0xfff}},
		{name: "above_range", addr: 0x2009, want: Frame{Addr: 0x2009}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Resolve(tt.addr)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(0x%x) ok = %v, want %v", tt.addr, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("Resolve(0x%x) = %+v, want %+v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestSymbolizer_SymbolizeSkipsUnresolvable(t *testing.T) {
	s := newTestSymbolizer(t)

	frames := s.Symbolize([]uint64{0x10, 0x1004, 0xffffffff, 0x2001})
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames after skipping unresolvable addresses, got %d", len(frames))
	}
	if frames[0].Name != "_main" || frames[0].Offset != 4 {
		t.Fatalf("unexpected first frame: %+v", frames[0])
	}
	if frames[1].Name != "___dso_handle" || frames[1].Offset != 1 {
		t.Fatalf("unexpected second frame: %+v", frames[1])
	}
	if s.Map() == nil || len(s.Map().Symbols) != 3 {
		t.Fatalf("expected symbolizer to expose its map")
	}
}

func TestFrame_String(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
	}{
		{
			frame: Frame{Addr: 0x1050, Name: "_util_strlen", Offset: 0x10, Object: "strings.o", Library: "libutil.a", Segment: "__TEXT", Section: "__text"},
			want:  "0x1050 _util_strlen+0x10 (libutil.a(strings.o)) __TEXT,__text",
		},
		{
			frame: Frame{Addr: 0x1000, Name: "_main", Object: "main.o", Segment: "__TEXT", Section: "__text"},
			want:  "0x1000 _main+0x0 (main.o) __TEXT,__text",
		},
	}
	for _, tt := range tests {
		if got := tt.frame.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
