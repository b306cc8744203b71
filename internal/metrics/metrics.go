// Package metrics keeps lightweight in-process counters for a consolidation
// run. Counters are labeled by origin entity and reported at the end of the
// run; there is no external metrics surface.
package metrics

import (
	"sort"
	"sync"
)

// Registry is a set of named, entity-labeled counters.
type Registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64 // name -> entity -> count
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]map[string]int64)}
}

// Add increments the named counter for an entity.
func (r *Registry) Add(name, entity string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters[name] == nil {
		r.counters[name] = make(map[string]int64)
	}
	r.counters[name][entity] += delta
}

// Total returns the counter summed over all entities.
func (r *Registry) Total(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, n := range r.counters[name] {
		total += n
	}
	return total
}

// Get returns the counter for one entity.
func (r *Registry) Get(name, entity string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name][entity]
}

// Names returns the registered counter names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Counter names used by the consolidation pipeline.
const (
	UnitsProcessed = "units_processed"
	UnitsFailed    = "units_failed"
	MentionsBuilt  = "mentions_built"
	EventsLinked   = "events_linked"
	EventsCreated  = "events_created"
	EventsSwept    = "events_swept"
	Arbitrations   = "classifier_arbitrations"
)
