package manifest

import "log/slog"

// Registry maps operator keys to manifests, preserving registration order.
type Registry struct {
	manifests map[string]Manifest
	order     []string
}

// NewRegistry creates a Registry holding ms, later entries overwriting
// earlier ones with the same key.
func NewRegistry(ms ...Manifest) *Registry {
	r := &Registry{manifests: make(map[string]Manifest, len(ms))}
	for _, m := range ms {
		r.Register(m)
	}
	return r
}

// Register adds or replaces the manifest for m.Key.
func (r *Registry) Register(m Manifest) {
	if _, ok := r.manifests[m.Key]; ok {
		slog.Warn("operator manifest registered twice, overwriting", "operator", m.Key)
	} else {
		r.order = append(r.order, m.Key)
	}
	r.manifests[m.Key] = m.Clone()
}

// Get returns the manifest registered under key.
func (r *Registry) Get(key string) (Manifest, bool) {
	if r == nil {
		return Manifest{}, false
	}
	m, ok := r.manifests[key]
	if !ok {
		return Manifest{}, false
	}
	return m.Clone(), true
}

// Resolve returns the manifest for key, or a placeholder tool manifest with no
// ports when the key is unknown. It never fails.
func (r *Registry) Resolve(key string) (Manifest, bool) {
	if m, ok := r.Get(key); ok {
		return m, true
	}
	return Manifest{Key: key, Name: key, Kind: KindTool}, false
}

// List returns every manifest in registration order.
func (r *Registry) List() []Manifest {
	if r == nil {
		return nil
	}
	out := make([]Manifest, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.manifests[k].Clone())
	}
	return out
}

// Len returns the number of registered manifests.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
