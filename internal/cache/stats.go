package cache

import (
	"context"
	"strings"
	"sync"
)

// Stats collects cache observations for one request, keyed by the segment
// of the cache key before the first colon ("nhs", "medlineplus", "pubmed",
// "link"). It travels in the context so the shared process-wide Store can
// attribute lookups to the request that issued them.
type Stats struct {
	mu   sync.Mutex
	seen map[string]bool
}

type statsCtxKey struct{}

// WithStats attaches a fresh Stats to ctx and returns both.
func WithStats(ctx context.Context) (context.Context, *Stats) {
	s := &Stats{seen: make(map[string]bool)}
	return context.WithValue(ctx, statsCtxKey{}, s), s
}

func statsFrom(ctx context.Context) *Stats {
	s, _ := ctx.Value(statsCtxKey{}).(*Stats)
	return s
}

// record marks a prefix as hit if any lookup under it hit.
func (s *Stats) record(prefix string, hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.seen[prefix] = true
		return
	}
	if _, ok := s.seen[prefix]; !ok {
		s.seen[prefix] = false
	}
}

// Snapshot returns a copy of the observations so far.
func (s *Stats) Snapshot() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.seen))
	for k, v := range s.seen {
		out[k] = v
	}
	return out
}

// Recording wraps a Store and reports each Get to the Stats carried in the
// call context, if any. Set, Delete and RateLimit pass through untouched.
type Recording struct {
	Store
}

func NewRecording(inner Store) *Recording {
	return &Recording{Store: inner}
}

func (r *Recording) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok := r.Store.Get(ctx, key)
	if s := statsFrom(ctx); s != nil {
		s.record(keyPrefix(key), ok)
	}
	return value, ok
}

func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

var _ Store = (*Recording)(nil)
