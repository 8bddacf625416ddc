// Package cache holds fetched page content keyed by URL and request headers.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 100
)

// Cache stores document content for a bounded time.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, content string, ttl time.Duration)
}

// Memory is an in-process Cache with TTL expiry and FIFO eviction once
// maxEntries is reached.
type Memory struct {
	store      *gocache.Cache
	maxEntries int

	mu    sync.Mutex
	order []string
}

// NewMemory creates a Memory cache. Non-positive arguments fall back to
// DefaultTTL and DefaultMaxEntries.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		store:      gocache.New(ttl, 2*ttl),
		maxEntries: maxEntries,
	}
}

func (m *Memory) Get(key string) (string, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores content under key. A ttl of zero uses the cache default.
func (m *Memory) Set(key, content string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.store.Get(key); !exists {
		m.compact()
		for len(m.order) >= m.maxEntries {
			oldest := m.order[0]
			m.order = m.order[1:]
			m.store.Delete(oldest)
		}
		m.order = append(m.order, key)
	}
	m.store.Set(key, content, ttl)
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	return m.store.ItemCount()
}

// compact drops keys that already expired out of the store.
func (m *Memory) compact() {
	kept := m.order[:0]
	for _, k := range m.order {
		if _, ok := m.store.Get(k); ok {
			kept = append(kept, k)
		}
	}
	m.order = kept
}

// Key derives a cache key from the URL and request headers. Header order
// does not matter.
func Key(url string, headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(url)
	for _, k := range names {
		b.WriteString("\n")
		b.WriteString(strings.ToLower(k))
		b.WriteString(":")
		b.WriteString(headers[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
