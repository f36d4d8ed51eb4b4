// Package model implements the Model Manager (spec.md §4.6): loading
// the on-disk model registry and driving the download/verify/install
// state machine for neural KWS models.
package model

import (
	"encoding/json"
	"os"
	"sync"

	"ember/internal/coreerr"
	"ember/internal/validate"
)

// RegistryEntry is the immutable per-model record (spec.md §3).
type RegistryEntry struct {
	ID               string `json:"id"`
	URL              string `json:"url"`
	SHA256           string `json:"sha256"`
	Size             int64  `json:"size"`
	Language         string `json:"language"`
	WakePhrase       string `json:"wake_phrase"`
	HumanDescription string `json:"human_description"`
}

// Registry holds the loaded model_id -> RegistryEntry mapping. Loaded
// once at startup, reloadable on demand.
type Registry struct {
	mu      sync.RWMutex
	path    string
	entries map[string]RegistryEntry
}

// NewRegistry builds an empty Registry pointed at the given JSON file
// path. Call Load before use.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, entries: map[string]RegistryEntry{}}
}

// Load reads and validates the registry file from disk, replacing the
// current entry set atomically.
func (r *Registry) Load() *coreerr.CoreError {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return coreerr.New(coreerr.ModelMissing, err.Error())
	}

	var raw map[string]RegistryEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return coreerr.New(coreerr.Unknown, "malformed model registry: "+err.Error())
	}

	entries := make(map[string]RegistryEntry, len(raw))
	for id, e := range raw {
		if cerr := validate.ModelID(id); cerr != nil {
			continue
		}
		e.ID = id
		entries[id] = e
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

// Reload is an alias for Load, exposed separately so callers can
// express intent (kws_list_models re-reading a registry mutated
// out-of-band).
func (r *Registry) Reload() *coreerr.CoreError { return r.Load() }

// List returns every known model entry.
func (r *Registry) List() []RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Get looks up one entry by id.
func (r *Registry) Get(id string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}
