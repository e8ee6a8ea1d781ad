package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
)

// PriceCache keeps the latest observation per symbol. Observations older than
// the freshness window are reported as absent.
type PriceCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]domain.PriceObservation
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]domain.PriceObservation),
	}
}

func (c *PriceCache) Get(symbol string) (domain.PriceObservation, bool) {
	key := normalizeSymbol(symbol)
	c.mu.RLock()
	observation, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return domain.PriceObservation{}, false
	}
	if c.now().Sub(observation.ObservedAt) > c.ttl {
		return domain.PriceObservation{}, false
	}
	return observation, true
}

// Put stores the observation unless the cache already holds a newer one for
// the symbol.
func (c *PriceCache) Put(symbol string, observation domain.PriceObservation) {
	key := normalizeSymbol(symbol)
	observation.Symbol = key
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[key]; ok && current.ObservedAt.After(observation.ObservedAt) {
		return
	}
	c.entries[key] = observation
}

func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
