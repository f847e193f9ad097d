package exporter

import (
	"fmt"
	"os"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
	collectorpb "go.opentelemetry.io/proto/otlp/collector/profiles/v1development"
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"
)

type NowFunc func() uint64 // produces unix nsec

// stringTable interns strings; index 0 is always "".
type stringTable struct {
	strs []string
	idx  map[string]int32
}

func newStringTable() *stringTable {
	return &stringTable{strs: []string{""}, idx: map[string]int32{"": 0}}
}

func (t *stringTable) index(s string) int32 {
	if i, ok := t.idx[s]; ok {
		return i
	}
	t.strs = append(t.strs, s)
	i := int32(len(t.strs) - 1)
	t.idx[s] = i
	return i
}

// BuildOltpSizeProfile is the OTLP counterpart of the pprof size profile: a
// sample per symbol valued in bytes, stack symbol -> object -> library ->
// section, and a mapping per section.
func BuildOltpSizeProfile(m *linkmap.Map, now NowFunc) *profilespb.ProfilesData {
	resourceProfiles, dictionary := buildSizeProfile(m, now)
	return &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{resourceProfiles},
		Dictionary:       dictionary,
	}
}

// BuildExportRequest wraps the size profile in the request body an OTLP
// profiles collector accepts.
func BuildExportRequest(m *linkmap.Map, now NowFunc) *collectorpb.ExportProfilesServiceRequest {
	resourceProfiles, dictionary := buildSizeProfile(m, now)
	return &collectorpb.ExportProfilesServiceRequest{
		ResourceProfiles: []*profilespb.ResourceProfiles{resourceProfiles},
		Dictionary:       dictionary,
	}
}

func WriteOltpRequest(req *collectorpb.ExportProfilesServiceRequest, filename string) error {
	b, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal export request: %w", err)
	}
	return os.WriteFile(filename, b, 0o644)
}

func buildSizeProfile(m *linkmap.Map, now NowFunc) (*profilespb.ResourceProfiles, *profilespb.ProfilesDictionary) {
	nowNsec := now()
	strs := newStringTable()
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	sampleType := &profilespb.ValueType{
		TypeStrindex: strs.index("space"),
		UnitStrindex: strs.index("bytes"),
	}

	// section i lives at mapping i+1, 0 is the empty mapping
	for _, s := range m.Sections {
		mappingTable = append(mappingTable, &profilespb.Mapping{
			MemoryStart:      s.Address,
			MemoryLimit:      s.Address + s.Size,
			FilenameStrindex: strs.index(s.String()),
		})
	}

	funcs := map[string]int32{}
	type locKey struct {
		addr uint64
		name string
	}
	locs := map[locKey]int32{}

	functionIndex := func(name string) int32 {
		if i, ok := funcs[name]; ok {
			return i
		}
		nameIdx := strs.index(name)
		functionTable = append(functionTable, &profilespb.Function{
			NameStrindex:       nameIdx,
			SystemNameStrindex: nameIdx,
		})
		i := int32(len(functionTable) - 1)
		funcs[name] = i
		return i
	}

	locationIndex := func(addr uint64, name string, mappingIdx int32) int32 {
		key := locKey{addr: addr, name: name}
		if i, ok := locs[key]; ok {
			return i
		}
		locationTable = append(locationTable, &profilespb.Location{
			Address:      addr,
			MappingIndex: mappingIdx,
			Lines: []*profilespb.Line{
				{
					FunctionIndex: functionIndex(name),
					Line:          0,
				},
			},
		})
		i := int32(len(locationTable) - 1)
		locs[key] = i
		return i
	}

	profileSamples := make([]*profilespb.Sample, 0, len(m.Symbols))
	for i := range m.Symbols {
		sym := &m.Symbols[i]
		if sym.Size == 0 {
			continue
		}
		obj := m.ObjectOf(sym)

		locIndices := []int32{
			locationIndex(sym.Address, sym.Name, int32(sym.Section+1)),
			locationIndex(0, obj.String(), 0),
		}
		if obj.Library != "" {
			locIndices = append(locIndices, locationIndex(0, obj.Library, 0))
		}
		locIndices = append(locIndices, locationIndex(0, m.SectionOf(sym).String(), 0))

		stackTable = append(stackTable, &profilespb.Stack{LocationIndices: locIndices})
		profileSamples = append(profileSamples, &profilespb.Sample{
			StackIndex:       int32(len(stackTable) - 1),
			Values:           []int64{int64(sym.Size)},
			AttributeIndices: []int32{},
			LinkIndex:        0,
		})
	}

	profile := &profilespb.Profile{
		TimeUnixNano: nowNsec,
		DurationNano: uint64(0),
		SampleType:   sampleType,
		Samples:      profileSamples,
	}

	resourceProfiles := &profilespb.ResourceProfiles{
		Resource: &resourceV1.Resource{},
		ScopeProfiles: []*profilespb.ScopeProfiles{
			{
				Scope: &v1.InstrumentationScope{
					Name:    "linkmap-symbolizer",
					Version: "v1",
				},
				Profiles: []*profilespb.Profile{profile},
			},
		},
	}

	dictionary := &profilespb.ProfilesDictionary{
		MappingTable:  mappingTable,
		LocationTable: locationTable,
		FunctionTable: functionTable,
		StackTable:    stackTable,
		StringTable:   strs.strs,
	}
	return resourceProfiles, dictionary
}
