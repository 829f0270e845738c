package yamaha

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// SourceDescriptor describes one receiver input.
type SourceDescriptor struct {
	ID       string `json:"id"`
	ZonePath string `json:"zone_path"`
	Title    string `json:"title"`
	Writable bool   `json:"writable"`
}

// Catalog holds the receiver's input list. Every entry is kept for display
// and zone-path lookup; only writable entries are offered for selection.
type Catalog struct {
	exec Executor

	mu      sync.RWMutex
	entries map[string]SourceDescriptor
}

// NewCatalog creates an empty catalog.
func NewCatalog(exec Executor) *Catalog {
	return &Catalog{
		exec:    exec,
		entries: map[string]SourceDescriptor{},
	}
}

// Refresh reloads the input list and returns the sorted writable IDs. The
// previous catalog is replaced only when the new list was read successfully.
func (c *Catalog) Refresh(ctx context.Context) ([]string, error) {
	resp, err := c.exec.Execute(ctx, ync.Get, ync.InputItemsQuery(), "")
	if err != nil {
		return nil, err
	}
	items, err := resp.InputItems()
	if err != nil {
		return nil, fmt.Errorf("decode input list: %w", err)
	}

	entries := make(map[string]SourceDescriptor, len(items))
	for _, item := range items {
		entries[item.Param] = SourceDescriptor{
			ID:       item.Param,
			ZonePath: item.SrcName,
			Title:    item.Title,
			Writable: item.Writable,
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	return c.Sources(), nil
}

// Sources returns the sorted IDs of selectable inputs.
func (c *Catalog) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id, entry := range c.entries {
		if entry.Writable {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// All returns every known input sorted by ID, including read-only ones.
func (c *Catalog) All() []SourceDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]SourceDescriptor, 0, len(c.entries))
	for _, entry := range c.entries {
		all = append(all, entry)
	}
	slices.SortFunc(all, func(a, b SourceDescriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return all
}

// Lookup returns the descriptor for id.
func (c *Catalog) Lookup(id string) (SourceDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// ZonePath returns the zone path for id, or "" when unknown.
func (c *Catalog) ZonePath(id string) string {
	entry, _ := c.Lookup(id)
	return entry.ZonePath
}

// Selectable reports whether id is a writable input.
func (c *Catalog) Selectable(id string) bool {
	entry, ok := c.Lookup(id)
	return ok && entry.Writable
}

// Empty reports whether the catalog has never been loaded (or the receiver
// reported no inputs).
func (c *Catalog) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries) == 0
}
