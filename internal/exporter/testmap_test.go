package exporter

import (
	"testing"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
)

const testMap = `# Object files:
[  0] linker synthesized
[  1] /b/main.o
[  2] /b/libu.a(s.o)
# Sections:
0x1000	0x100	__TEXT	__text
# Symbols:
0x1000	0x40	[  1] _main
0x1040	0x20	[  2] _strlen
0x1060	0x0	[  2] _alias
# Dead Stripped Symbols:
`

func mustParse(t *testing.T, text string) *linkmap.Map {
	t.Helper()
	m, err := linkmap.Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return m
}
