// Package distribution resolves distribution expressions (the opaque key of a
// conversation's recipient set) into member lists.
//
// Resolved distributions are memoised for the lifetime of the process and
// never invalidated. Membership changes after the first resolution are not
// observed until restart; expressions are low-cardinality per deployment, so
// the cache stays small.
package distribution

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Distribution is the resolved recipient set of a conversation.
type Distribution struct {
	Expression string
	Members    []string
}

// Others returns the members not listed in exclude.
func (d *Distribution) Others(exclude ...string) []string {
	var out []string
	for _, m := range d.Members {
		if !slices.Contains(exclude, m) {
			out = append(out, m)
		}
	}
	return out
}

// Source is the external resolution service.
type Source interface {
	ResolveExpression(ctx context.Context, expr string) (*Distribution, error)
}

// ResolutionError reports a failed lookup of Expression.
type ResolutionError struct {
	Expression string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve distribution %q: %v", e.Expression, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Cache memoises a Source. It is safe for concurrent use; concurrent misses
// on one expression share a single upstream call.
type Cache struct {
	src     Source
	mu      sync.RWMutex
	entries map[string]*Distribution
	group   singleflight.Group
}

// NewCache returns an empty cache in front of src.
func NewCache(src Source) *Cache {
	return &Cache{src: src, entries: make(map[string]*Distribution)}
}

// Resolve returns the cached distribution for expr, fetching it once on the
// first request. Failures are returned as *ResolutionError and not cached.
func (c *Cache) Resolve(ctx context.Context, expr string) (*Distribution, error) {
	c.mu.RLock()
	d, ok := c.entries[expr]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	v, err, _ := c.group.Do(expr, func() (any, error) {
		c.mu.RLock()
		d, ok := c.entries[expr]
		c.mu.RUnlock()
		if ok {
			return d, nil
		}

		// Shared by every coalesced caller: the first caller's cancellation
		// must not fail the others.
		d, err := c.src.ResolveExpression(context.WithoutCancel(ctx), expr)
		if err != nil {
			return nil, err
		}
		if d.Expression == "" {
			d.Expression = expr
		}
		c.mu.Lock()
		c.entries[expr] = d
		c.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, &ResolutionError{Expression: expr, Err: err}
	}
	return v.(*Distribution), nil
}

// Len returns the number of cached expressions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
