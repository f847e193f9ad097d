package pprof

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
	"github.com/google/pprof/profile"
)

// BuildSizeProfile turns a link map into a pprof "space" profile: one sample
// per symbol weighted by its size, with a synthetic stack of
// symbol -> object file -> library -> section so that pprof can aggregate
// by any of them. Every section becomes a mapping.
func BuildSizeProfile(m *linkmap.Map) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "space", Unit: "bytes"}},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     1,
	}

	mappings := make([]*profile.Mapping, len(m.Sections))
	for i, s := range m.Sections {
		mappings[i] = &profile.Mapping{
			ID:    uint64(i + 1),
			Start: s.Address,
			Limit: s.Address + s.Size,
			File:  s.String(),
		}
	}
	p.Mapping = mappings

	funcs := map[string]*profile.Function{}
	type locKey struct {
		addr uint64
		name string
	}
	locMap := map[locKey]*profile.Location{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	addFunction := func(name string) *profile.Function {
		if f, ok := funcs[name]; ok {
			return f
		}
		fn := &profile.Function{
			ID:         nextFuncID,
			Name:       name,
			SystemName: name,
		}
		nextFuncID++
		funcs[name] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	addLocation := func(addr uint64, name string, mapping *profile.Mapping) *profile.Location {
		key := locKey{addr: addr, name: name}
		if loc, ok := locMap[key]; ok {
			return loc
		}
		loc := &profile.Location{
			ID:      nextLocID,
			Address: addr,
			Mapping: mapping,
			Line:    []profile.Line{{Function: addFunction(name)}},
		}
		nextLocID++
		locMap[key] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for i := range m.Symbols {
		sym := &m.Symbols[i]
		if sym.Size == 0 {
			continue
		}
		obj := m.ObjectOf(sym)
		sect := m.SectionOf(sym)

		// leaf first, as pprof expects
		locs := []*profile.Location{addLocation(sym.Address, sym.Name, mappings[sym.Section])}
		locs = append(locs, addLocation(0, obj.String(), nil))
		if obj.Library != "" {
			locs = append(locs, addLocation(0, obj.Library, nil))
		}
		locs = append(locs, addLocation(0, sect.String(), nil))

		p.Sample = append(p.Sample, &profile.Sample{
			Value:    []int64{int64(sym.Size)},
			Location: locs,
			Label: map[string][]string{
				"object":  {obj.String()},
				"section": {sect.String()},
			},
			NumLabel: map[string][]int64{},
		})
	}

	// sort for deterministic output
	sort.Slice(p.Function, func(i, j int) bool { return p.Function[i].ID < p.Function[j].ID })
	sort.Slice(p.Location, func(i, j int) bool { return p.Location[i].ID < p.Location[j].ID })

	return p
}

// WriteProfile writes p in the gzip-compressed protobuf encoding pprof reads.
func WriteProfile(p *profile.Profile, w io.Writer) error {
	return p.Write(w)
}

func WriteProfileToFile(p *profile.Profile, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteProfile(p, f); err != nil {
		f.Close()
		return fmt.Errorf("writing profile to %s: %w", filename, err)
	}
	return f.Close()
}
