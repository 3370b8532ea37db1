package llm

import (
	"sort"
	"strings"
)

// Registry holds the providers built from config, keyed by lowercased name.
// Lookup is case-insensitive; the batch runner resolves the configured
// default provider through it.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own reported name. Nil providers and
// providers with a blank name are ignored.
func (r *Registry) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	key := normalizeName(p.Name())
	if key == "" {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[key] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil || len(r.providers) == 0 {
		return nil, false
	}
	p, ok := r.providers[normalizeName(name)]
	return p, ok
}

// Sole returns the only registered provider, when exactly one exists.
func (r *Registry) Sole() (Provider, bool) {
	if r == nil || len(r.providers) != 1 {
		return nil, false
	}
	for _, p := range r.providers {
		return p, true
	}
	return nil, false
}

// Names lists the registered provider names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for k := range r.providers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
