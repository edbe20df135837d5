package integral

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes Compute keyed by the exact content of the input matrix
// together with the window and method. For a given key the computation runs
// at most once for the lifetime of the cache, and every lookup returns the
// same result slices. Callers must treat returned matrices as read-only.
//
// The cache is unbounded and never evicts; Reset drops every entry. It is
// safe for concurrent use. A nil *Cache computes without memoizing.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey][][]float64
	flight  singleflight.Group

	hits     atomic.Int64
	computes atomic.Int64
}

// cacheKey identifies a computation by content hash and parameters.
type cacheKey struct {
	sum      uint64
	channels int
	samples  int
	deltaS   float64
	fs       float64
	method   Method
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%016x/%dx%d/%g/%g/%s", k.sum, k.channels, k.samples, k.deltaS, k.fs, k.method)
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Computes int64 `json:"computes"`
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][][]float64)}
}

// Get returns the coincidence integral of x, computing it only if no
// identical matrix has been integrated with the same window and method.
// Errors are not cached.
func (c *Cache) Get(x [][]float64, w Window, m Method) ([][]float64, error) {
	if c == nil {
		return Compute(x, w, m)
	}
	if _, err := checkMatrix(x); err != nil {
		return nil, err
	}
	key := newCacheKey(x, w, m)

	if out, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return out, nil
	}

	v, err, _ := c.flight.Do(key.String(), func() (any, error) {
		// Another caller may have filled the key between lookup and Do.
		if out, ok := c.lookup(key); ok {
			c.hits.Add(1)
			return out, nil
		}
		out, err := Compute(x, w, m)
		if err != nil {
			return nil, err
		}
		c.computes.Add(1)
		c.mu.Lock()
		c.entries[key] = out
		c.mu.Unlock()
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float64), nil
}

// Len returns the number of cached matrices.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Entries:  c.Len(),
		Hits:     c.hits.Load(),
		Computes: c.computes.Load(),
	}
}

// Reset drops every entry and zeroes the counters.
func (c *Cache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[cacheKey][][]float64)
	c.mu.Unlock()
	c.hits.Store(0)
	c.computes.Store(0)
}

func (c *Cache) lookup(key cacheKey) ([][]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.entries[key]
	return out, ok
}

// newCacheKey hashes the IEEE-754 bits of every sample, row by row.
func newCacheKey(x [][]float64, w Window, m Method) cacheKey {
	d := xxhash.New()
	var buf [8]byte
	for _, row := range x {
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = d.Write(buf[:])
		}
	}
	return cacheKey{
		sum:      d.Sum64(),
		channels: len(x),
		samples:  len(x[0]),
		deltaS:   w.DeltaS,
		fs:       w.Fs,
		method:   m,
	}
}
