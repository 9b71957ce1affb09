package source

import (
	"sort"

	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// Map is the source registry: it maps a SourceID to the Source that can
// supply packages with that identifier. A Map is not safe for concurrent
// mutation.
type Map struct {
	sources map[manifest.SourceID]Source
}

// NewMap creates an empty source registry.
func NewMap() *Map {
	return &Map{sources: make(map[manifest.SourceID]Source)}
}

// Add registers a source, replacing any source with the same ID.
func (m *Map) Add(s Source) {
	m.sources[s.ID()] = s
}

// Get returns the source registered under id.
func (m *Map) Get(id manifest.SourceID) (Source, bool) {
	s, ok := m.sources[id]
	return s, ok
}

// Len returns the number of registered sources.
func (m *Map) Len() int {
	return len(m.sources)
}

// IDs returns every registered source ID, sorted.
func (m *Map) IDs() []manifest.SourceID {
	ids := make([]manifest.SourceID, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddMap absorbs every source of other. On an ID collision the source from
// other wins.
func (m *Map) AddMap(other *Map) {
	if other == nil {
		return
	}
	for id, s := range other.sources {
		m.sources[id] = s
	}
}

// Clone returns a shallow copy of the registry.
func (m *Map) Clone() *Map {
	out := &Map{sources: make(map[manifest.SourceID]Source, len(m.sources))}
	for id, s := range m.sources {
		out.sources[id] = s
	}
	return out
}
