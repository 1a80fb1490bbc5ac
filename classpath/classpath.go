// Package classpath models the ordered list of library locations visible to
// one compilation.
package classpath

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
)

// ErrFrozen is returned when adding to a classpath that a compilation has
// already started using.
var ErrFrozen = errors.New("classpath is frozen")

// Config is an ordered, duplicate-free sequence of library locations.
// Entries can only be appended, and only until Freeze is called.
type Config struct {
	mu      sync.Mutex
	entries []string
	seen    map[string]bool
	frozen  bool
}

// New creates a classpath holding entries in order. Duplicates are dropped.
func New(entries ...string) (*Config, error) {
	c := &Config{seen: make(map[string]bool)}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// normalize maps a location to the key used for duplicate detection.
func normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty classpath entry")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve classpath entry %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// Add appends path unless an equivalent entry is already present.
func (c *Config) Add(path string) error {
	key, err := normalize(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[key] {
		return nil
	}
	if c.frozen {
		return fmt.Errorf("add %s: %w", path, ErrFrozen)
	}
	c.seen[key] = true
	c.entries = append(c.entries, key)
	return nil
}

// Contains reports whether path (after normalization) is an entry.
func (c *Config) Contains(path string) bool {
	key, err := normalize(path)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[key]
}

// Entries returns a copy of the entries in order.
func (c *Config) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.entries)
}

// Len returns the number of entries.
func (c *Config) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Freeze forbids further additions and returns the final entries.
func (c *Config) Freeze() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
	return slices.Clone(c.entries)
}

// Frozen reports whether Freeze has been called.
func (c *Config) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// Clone returns an unfrozen copy with the same entries.
func (c *Config) Clone() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := &Config{seen: make(map[string]bool, len(c.seen)), entries: slices.Clone(c.entries)}
	for k := range c.seen {
		n.seen[k] = true
	}
	return n
}
