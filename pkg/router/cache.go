package router

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// classificationCache remembers LLM classification results keyed by
// normalized message + metadata fingerprint. Entries expire after the
// configured TTL and the LRU bounds memory. Heuristic results are never
// cached; they are cheaper than the lookup.
type classificationCache struct {
	lru *expirable.LRU[string, Classification]
}

func newClassificationCache(capacity int, ttl time.Duration) *classificationCache {
	return &classificationCache{
		lru: expirable.NewLRU[string, Classification](capacity, nil, ttl),
	}
}

func (c *classificationCache) get(key string) (Classification, bool) {
	return c.lru.Get(key)
}

func (c *classificationCache) put(key string, value Classification) {
	c.lru.Add(key, value)
}

func (c *classificationCache) len() int {
	return c.lru.Len()
}
