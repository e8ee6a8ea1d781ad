package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCache_FreshnessWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	cache := NewPriceCache(time.Minute)
	cache.now = func() time.Time { return now }

	cache.Put("aapl", domain.PriceObservation{Price: dec("151"), ObservedAt: now.Add(-30 * time.Second)})

	observation, ok := cache.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "AAPL", observation.Symbol)
	assert.True(t, observation.Price.Equal(dec("151")))

	now = now.Add(30 * time.Second)
	_, ok = cache.Get("AAPL")
	assert.True(t, ok, "entry exactly at the ttl is still fresh")

	now = now.Add(time.Second)
	_, ok = cache.Get("AAPL")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestPriceCache_KeepsNewerObservation(t *testing.T) {
	now := time.Now()
	cache := NewPriceCache(time.Minute)
	cache.now = func() time.Time { return now }

	cache.Put("MSFT", domain.PriceObservation{Price: dec("300"), ObservedAt: now})
	cache.Put(" msft ", domain.PriceObservation{Price: dec("290"), ObservedAt: now.Add(-2 * time.Minute)})

	observation, ok := cache.Get("MSFT")
	require.True(t, ok)
	assert.True(t, observation.Price.Equal(dec("300")))

	cache.Put("MSFT", domain.PriceObservation{Price: dec("305"), ObservedAt: now})
	observation, ok = cache.Get("msft")
	require.True(t, ok)
	assert.True(t, observation.Price.Equal(dec("305")), "same timestamp replaces")
}

func TestPriceCache_MissingSymbol(t *testing.T) {
	cache := NewPriceCache(time.Minute)
	_, ok := cache.Get("TSLA")
	assert.False(t, ok)
}

func TestPriceCache_ConcurrentAccess(t *testing.T) {
	cache := NewPriceCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cache.Put("AAPL", domain.PriceObservation{Price: dec("150"), ObservedAt: time.Now()})
		}()
		go func() {
			defer wg.Done()
			cache.Get("AAPL")
		}()
	}
	wg.Wait()

	_, ok := cache.Get("AAPL")
	assert.True(t, ok)
}
