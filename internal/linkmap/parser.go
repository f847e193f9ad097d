package linkmap

import (
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/grafana/regexp"
)

const (
	objectsMarker  = "# Object files:"
	sectionsMarker = "# Sections:"
	symbolsMarker  = "# Symbols:"
	deadMarker     = "# Dead Stripped Symbols:"
)

var (
	// [  3] /path/to/libFoo.a(bar.o)
	objectRow = regexp.MustCompile(`^\[\s*(\d+)\]\s+(.+)$`)
	// archive(member) as written by the linker for objects extracted from static libraries
	archiveMember = regexp.MustCompile(`^(.*)\((.*)\)$`)
	// 0x100003F50	0x00000020	[  1] _main
	symbolRow = regexp.MustCompile(`^(\S+)\s+(\S+)\s+\[([^\]]*)\]\s+(.+)$`)
	// <<dead>> 	0x00000018	[  2] _unused
	deadRow = regexp.MustCompile(`^<<dead>>\s+(\S+)\s+\[([^\]]*)\]\s+(.+)$`)
)

type line struct {
	num  int
	text string
}

// Parse builds a Map from the text of a linker map file. Invalid UTF-8 is
// dropped, blank lines and '#' comment lines inside regions are ignored. Any
// other row that does not fit its region fails the whole parse with a
// *ParseError.
func Parse(data []byte) (*Map, error) {
	lines := splitLines(data)

	regions, err := findRegions(lines)
	if err != nil {
		return nil, err
	}

	m := &Map{}
	if m.Objects, err = parseObjects(regions[0]); err != nil {
		return nil, err
	}
	if m.Sections, err = parseSections(regions[1]); err != nil {
		return nil, err
	}
	if err = m.parseSymbols(regions[2]); err != nil {
		return nil, err
	}
	if err = m.parseDeadStripped(regions[3]); err != nil {
		return nil, err
	}

	slog.Debug("Parsed link map",
		"objects", len(m.Objects),
		"sections", len(m.Sections),
		"symbols", len(m.Symbols),
		"dead_stripped", len(m.DeadStripped),
		"sorted", m.sorted)
	return m, nil
}

func splitLines(data []byte) []line {
	text := strings.ToValidUTF8(string(data), "")
	raw := strings.Split(text, "\n")
	lines := make([]line, 0, len(raw))
	for i, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, line{num: i + 1, text: l})
	}
	return lines
}

// findRegions returns the rows between each marker and the next one, markers excluded.
func findRegions(lines []line) ([4][]line, error) {
	var regions [4][]line
	markers := [4]string{objectsMarker, sectionsMarker, symbolsMarker, deadMarker}

	var starts [4]int
	next := 0
	for i, l := range lines {
		if next < len(markers) && l.text == markers[next] {
			starts[next] = i
			next++
		}
	}
	if next < len(markers) {
		for _, l := range lines {
			if l.text == markers[next] {
				return regions, &ParseError{Err: ErrMissingRegion, Line: l.num, Content: l.text,
					Detail: fmt.Sprintf("%q appears before %q", markers[next], markers[next-1])}
			}
		}
		return regions, &ParseError{Err: ErrMissingRegion, Detail: fmt.Sprintf("no %q marker", markers[next])}
	}

	for i := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		regions[i] = withoutComments(lines[starts[i]+1 : end])
	}
	return regions, nil
}

func withoutComments(lines []line) []line {
	rows := make([]line, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l.text, "#") {
			continue
		}
		rows = append(rows, l)
	}
	return rows
}

func parseObjects(rows []line) ([]ObjectFile, error) {
	objects := make([]ObjectFile, 0, len(rows))
	for i, l := range rows {
		m := objectRow.FindStringSubmatch(l.text)
		if m == nil {
			return nil, lineError(ErrMalformedObjectFile, l, "expected \"[index] path\"")
		}
		// the row position is what symbols refer to, the tag has to agree with it
		tag, err := strconv.Atoi(m[1])
		if err != nil || tag != i {
			return nil, lineError(ErrMalformedObjectFile, l, "tag %s at position %d", m[1], i)
		}
		objects = append(objects, newObjectFile(m[2]))
	}
	return objects, nil
}

func newObjectFile(p string) ObjectFile {
	if m := archiveMember.FindStringSubmatch(p); m != nil {
		return ObjectFile{File: path.Base(m[2]), Library: path.Base(m[1])}
	}
	return ObjectFile{File: path.Base(p)}
}

func parseSections(rows []line) ([]Section, error) {
	sections := make([]Section, 0, len(rows))
	for _, l := range rows {
		fields := strings.Fields(l.text)
		if len(fields) != 4 {
			return nil, lineError(ErrMalformedSection, l, "expected 4 fields, got %d", len(fields))
		}
		addr, err := parseHex(fields[0])
		if err != nil {
			return nil, lineError(ErrMalformedSection, l, "address: %v", err)
		}
		size, err := parseHex(fields[1])
		if err != nil {
			return nil, lineError(ErrMalformedSection, l, "size: %v", err)
		}
		sections = append(sections, Section{Address: addr, Size: size, Segment: fields[2], Name: fields[3]})
	}
	return sections, nil
}

func (m *Map) parseSymbols(rows []line) error {
	m.Symbols = make([]Symbol, 0, len(rows))
	m.sorted = true
	for _, l := range rows {
		g := symbolRow.FindStringSubmatch(l.text)
		if g == nil {
			return lineError(ErrMalformedSymbolRow, l, "expected \"address size [index] name\"")
		}
		addr, err := parseHex(g[1])
		if err != nil {
			return lineError(ErrMalformedSymbolRow, l, "address: %v", err)
		}
		size, err := parseHex(g[2])
		if err != nil {
			return lineError(ErrMalformedSymbolRow, l, "size: %v", err)
		}
		obj, err := m.objectIndex(g[3], l)
		if err != nil {
			return err
		}
		sect, err := m.sectionIndex(addr, l)
		if err != nil {
			return err
		}
		if n := len(m.Symbols); n > 0 && m.Symbols[n-1].Address > addr {
			m.sorted = false
		}
		m.Symbols = append(m.Symbols, Symbol{Address: addr, Size: size, Name: g[4], Object: obj, Section: sect})
	}
	return nil
}

func (m *Map) parseDeadStripped(rows []line) error {
	m.DeadStripped = make([]DeadSymbol, 0, len(rows))
	for _, l := range rows {
		g := deadRow.FindStringSubmatch(l.text)
		if g == nil {
			return lineError(ErrMalformedSymbolRow, l, "expected \"<<dead>> size [index] name\"")
		}
		size, err := parseHex(g[1])
		if err != nil {
			return lineError(ErrMalformedSymbolRow, l, "size: %v", err)
		}
		obj, err := m.objectIndex(g[2], l)
		if err != nil {
			return err
		}
		m.DeadStripped = append(m.DeadStripped, DeadSymbol{Size: size, Name: g[3], Object: obj})
	}
	return nil
}

func (m *Map) objectIndex(s string, l line) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, lineError(ErrMalformedSymbolRow, l, "object index %q", s)
	}
	if idx < 0 || idx >= len(m.Objects) {
		return 0, lineError(ErrUnknownObjectIndex, l, "%d not in [0, %d)", idx, len(m.Objects))
	}
	return idx, nil
}

// sectionIndex finds the single section containing addr. Overlapping sections
// are reported rather than resolved.
func (m *Map) sectionIndex(addr uint64, l line) (int, error) {
	found := -1
	for i, s := range m.Sections {
		if !s.Contains(addr) {
			continue
		}
		if found >= 0 {
			return 0, lineError(ErrUnresolvedSection, l, "0x%x is in both %s and %s", addr, m.Sections[found], s)
		}
		found = i
	}
	if found < 0 {
		return 0, lineError(ErrUnresolvedSection, l, "0x%x is outside every section", addr)
	}
	return found, nil
}

func parseHex(s string) (uint64, error) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return strconv.ParseUint(s, 16, 64)
}
