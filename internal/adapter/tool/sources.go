package tool

import (
	"sync"

	"lectern/internal/domain"
)

// sourceCache is the citation cache tools embed to satisfy
// domain.SourceProvider. Each execution replaces the whole list; reads
// return a copy so callers cannot mutate cached state. The mutex keeps the
// single shared field safe under concurrent dispatches.
type sourceCache struct {
	mu      sync.Mutex
	sources []domain.Source
}

// setSources replaces the cached list. Pass nil to clear.
func (c *sourceCache) setSources(sources []domain.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = sources
}

// LastSources returns the sources cached by the most recent execution,
// empty when the last execution produced none.
func (c *sourceCache) LastSources() []domain.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// ClearSources resets the cached source list.
func (c *sourceCache) ClearSources() { c.setSources(nil) }
