package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type Cacher interface {
	// Get returns true if get a hit in the cache and are able to deserialize
	// into the provided struct
	Get(key string, into any) bool

	// Set will serialize the provided data and store it in our cache
	Set(key string, val any)

	// Invalidate drops the entry for key, if any
	Invalidate(key string)

	Stats() Statistics
}

type Result struct {
	CachedResponse []byte
	LastCached     time.Time
}

type Statistics struct {
	TotalRequests int
	TotalHits     int
	TotalMisses   int
}

// Client is an in-memory cache of serialized values that expire after a
// fixed duration.
type Client struct {
	expiresAfter time.Duration
	now          func() time.Time
	log          zerolog.Logger

	mu      sync.Mutex
	entries map[string]Result

	requests *int32
	hits     *int32
}

var _ Cacher = &Client{}

func (c *Client) Get(key string, into any) bool {
	atomic.AddInt32(c.requests, 1)

	c.mu.Lock()
	res, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		c.log.Debug().Msgf("cache miss on: %s", key)
		return false
	}

	if c.now().Sub(res.LastCached) > c.expiresAfter {
		c.log.Debug().Msgf("cache expiry on: %s", key)
		c.Invalidate(key)

		return false
	}

	err := json.Unmarshal(res.CachedResponse, into)
	if err != nil {
		c.log.Info().Err(err).Msgf("deserializing cached value: %s", key)
		return false
	}

	atomic.AddInt32(c.hits, 1)
	return true
}

func (c *Client) Set(key string, val any) {
	data, err := json.Marshal(val)
	if err != nil {
		c.log.Info().Err(err).Msgf("serializing value for cache: %s", key)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Result{
		CachedResponse: data,
		LastCached:     c.now(),
	}
}

func (c *Client) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

func (c *Client) Stats() Statistics {
	requests := atomic.LoadInt32(c.requests)
	hits := atomic.LoadInt32(c.hits)

	return Statistics{
		TotalRequests: int(requests),
		TotalHits:     int(hits),
		TotalMisses:   int(requests - hits),
	}
}

// WithClock replaces the clock used to stamp and expire entries.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now

	return c
}

func New(expiresAfter time.Duration, log zerolog.Logger) *Client {
	return &Client{
		expiresAfter: expiresAfter,
		now:          time.Now,
		log:          log,
		entries:      map[string]Result{},
		hits:         new(int32),
		requests:     new(int32),
	}
}
