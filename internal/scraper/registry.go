package scraper

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// UnsupportedSourceError is returned when no scraper is registered for a
// marketplace identifier.
type UnsupportedSourceError struct {
	Source     string
	Registered []string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported marketplace %q (registered: %s)",
		e.Source, strings.Join(e.Registered, ", "))
}

// Registry maps lower-cased marketplace identifiers to scraper instances.
// Instances are built once on registration and reused for the process
// lifetime, so each marketplace keeps a single circuit breaker.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]*Scraper
}

func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]*Scraper)}
}

// Register adds a scraper under its marketplace identifier. Registering the
// same identifier twice is an error.
func (r *Registry) Register(s *Scraper) error {
	key := strings.ToLower(string(s.Source()))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scrapers[key]; exists {
		return fmt.Errorf("scraper already registered for %q", key)
	}
	r.scrapers[key] = s
	return nil
}

// Get returns the scraper for a marketplace identifier, case-insensitively.
func (r *Registry) Get(source string) (*Scraper, error) {
	key := strings.ToLower(source)

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scrapers[key]
	if !ok {
		return nil, &UnsupportedSourceError{Source: source, Registered: r.sourcesLocked()}
	}
	return s, nil
}

// Sources lists registered marketplace identifiers, sorted.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourcesLocked()
}

func (r *Registry) sourcesLocked() []string {
	sources := make([]string, 0, len(r.scrapers))
	for key := range r.scrapers {
		sources = append(sources, key)
	}
	sort.Strings(sources)
	return sources
}

// Scrapers returns all registered scrapers, for diagnostics sweeps.
func (r *Registry) Scrapers() []*Scraper {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Scraper, 0, len(r.scrapers))
	for _, key := range r.sourcesLocked() {
		out = append(out, r.scrapers[key])
	}
	return out
}
