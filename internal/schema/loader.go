package schema

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ErrNoSource = errors.New("schema: loader has no source")

// Source fetches the serialized descriptor set. Network or file transport
// is the caller's concern; the loader only sees bytes.
type Source func(ctx context.Context) ([]byte, error)

// Loader memoizes one catalog per process. Concurrent first callers share a
// single in-flight load and receive the same catalog instance; a failed
// load is not cached, so a later call may try again.
type Loader struct {
	source Source

	group singleflight.Group

	mu      sync.Mutex
	catalog Catalog
}

func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// Catalog returns the memoized catalog, loading it on first use.
func (l *Loader) Catalog(ctx context.Context) (Catalog, error) {
	l.mu.Lock()
	cached := l.catalog
	l.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	if l.source == nil {
		return nil, ErrNoSource
	}

	v, err, _ := l.group.Do("catalog", func() (any, error) {
		raw, err := l.source(ctx)
		if err != nil {
			return nil, err
		}
		cat, err := NewCatalog(raw)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.catalog = cat
		l.mu.Unlock()
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Catalog), nil
}
