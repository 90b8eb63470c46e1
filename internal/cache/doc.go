// Package cache provides a generic, thread-safe LRU cache.
//
//	c := cache.New[uint64, []float32](64)
//	k := c.GetOrCreate(key, func() []float32 { return build() })
//
// Entries beyond the capacity are evicted least recently used first.
// Hits, misses and evictions are counted for diagnostics.
//
// A Cache is safe for concurrent use and must not be copied after creation.
package cache
