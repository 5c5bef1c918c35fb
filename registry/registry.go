// Package registry manages the set of known metric definitions and their
// dense numeric ids, persisted as a JSON file under the data directory.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
)

// Registry holds every registered metric, indexed by both dense id and
// name, and persists to a JSON file on every mutation.
type Registry struct {
	mu      sync.RWMutex
	path    string
	metrics []chrntypes.Metric
	byName  map[string]uint32
}

// Load reads an existing registry file at path, or returns an empty
// registry if the file does not yet exist.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, byName: make(map[string]uint32)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, chrnerr.New(chrnerr.KindIO, "registry.Load", err)
	}

	var metrics []chrntypes.Metric
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, chrnerr.New(chrnerr.KindSerialization, "registry.Load", err)
	}
	for _, m := range metrics {
		r.metrics = append(r.metrics, m)
		r.byName[m.Name] = m.ID
	}
	return r, nil
}

// Register assigns metric a dense id and appends it, unless a metric by
// the same name already exists, in which case its existing id is
// returned and the registry is left unchanged.
func (r *Registry) Register(m chrntypes.Metric) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[m.Name]; ok {
		return id, nil
	}

	id := uint32(len(r.metrics))
	m.ID = id
	r.metrics = append(r.metrics, m)
	r.byName[m.Name] = id

	if err := r.persistLocked(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetByID returns the metric with the given id.
func (r *Registry) GetByID(id uint32) (chrntypes.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.metrics) {
		return chrntypes.Metric{}, false
	}
	return r.metrics[id], true
}

// GetByName returns the metric registered under name.
func (r *Registry) GetByName(name string) (chrntypes.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return chrntypes.Metric{}, false
	}
	return r.metrics[id], true
}

// All returns every registered metric, in id order.
func (r *Registry) All() []chrntypes.Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chrntypes.Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// ByCategory returns every metric registered under the given category.
func (r *Registry) ByCategory(cat chrntypes.Category) []chrntypes.Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []chrntypes.Metric
	for _, m := range r.metrics {
		if m.Category == cat {
			out = append(out, m)
		}
	}
	return out
}

// persistLocked writes the registry to disk atomically (write-temp,
// rename), assuming the caller already holds r.mu.
func (r *Registry) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return chrnerr.New(chrnerr.KindIO, "registry.persist", err)
	}

	data, err := json.MarshalIndent(r.metrics, "", "  ")
	if err != nil {
		return chrnerr.New(chrnerr.KindSerialization, "registry.persist", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return chrnerr.New(chrnerr.KindIO, "registry.persist", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return chrnerr.New(chrnerr.KindIO, "registry.persist", err)
	}
	return nil
}
