package definition

import (
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/lambda-feedback/procpipe/internal/execution/proc"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Entry describes a pipeline of a catalog.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Command     string `json:"command"`
}

// Catalog maps names to pipeline descriptors. It is safe for concurrent
// use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]catalogEntry
}

type catalogEntry struct {
	pipeline    *proc.Pipeline
	description string
}

func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]catalogEntry)}
}

// Add registers a pipeline under name.
func (c *Catalog) Add(name string, p *proc.Pipeline, description string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	c.entries[name] = catalogEntry{pipeline: p, description: description}

	return nil
}

// Get returns the pipeline registered under name.
func (c *Catalog) Get(name string) (*proc.Pipeline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]

	return e.pipeline, ok
}

// Len returns the number of pipelines.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Entries lists all pipelines, sorted by name.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, name := range sortedKeys(c.entries) {
		e := c.entries[name]
		entries = append(entries, Entry{
			Name:        name,
			Description: e.description,
			Command:     e.pipeline.String(),
		})
	}

	return entries
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
