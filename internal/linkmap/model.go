package linkmap

import "fmt"

type Section struct {
	Address uint64
	Size    uint64
	Segment string
	Name    string
}

// Contains reports whether addr lies in [Address, Address+Size).
func (s Section) Contains(addr uint64) bool {
	return addr >= s.Address && addr-s.Address < s.Size
}

func (s Section) String() string {
	return s.Segment + "," + s.Name
}

type ObjectFile struct {
	File    string
	Library string // empty unless the object was pulled out of an archive
}

func (o ObjectFile) String() string {
	if o.Library == "" {
		return o.File
	}
	return fmt.Sprintf("%s(%s)", o.Library, o.File)
}

type Symbol struct {
	Address uint64
	Size    uint64
	Name    string
	Object  int // index into Map.Objects
	Section int // index into Map.Sections
}

// DeadSymbol is a symbol the linker stripped from the output. It has no address.
type DeadSymbol struct {
	Size   uint64
	Name   string
	Object int
}

// Map is the parsed form of a linker map file. It must not be modified after
// Parse returns it, readers may share it freely.
type Map struct {
	Objects      []ObjectFile
	Sections     []Section
	Symbols      []Symbol
	DeadStripped []DeadSymbol

	sorted bool
}

func (m *Map) ObjectOf(sym *Symbol) *ObjectFile {
	return &m.Objects[sym.Object]
}

func (m *Map) SectionOf(sym *Symbol) *Section {
	return &m.Sections[sym.Section]
}

// SymbolsSorted reports whether the symbol table was listed in non-decreasing
// address order.
func (m *Map) SymbolsSorted() bool {
	return m.sorted
}
