package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/northbeam/tickengine/models"
)

const candleCacheNamespace = "candle_cache"

// CandleCache is the persistent map keyed by
// {exchange,symbol,interval,bucketStart} → OHLCV the spec's data model
// names as a secondary entity. It is a thin, typed wrapper over Store.
type CandleCache struct {
	store Store
}

// NewCandleCache wraps store for candle-cache use and runs its one-shot
// namespace initialization.
func NewCandleCache(s Store) (*CandleCache, error) {
	if err := s.WaitForInit(candleCacheNamespace, func(blob []byte) bool {
		var c models.OHLCV
		return json.Unmarshal(blob, &c) == nil
	}); err != nil {
		return nil, fmt.Errorf("candle cache init: %w", err)
	}
	return &CandleCache{store: s}, nil
}

func candleKey(exchange, symbol, interval string, bucketStart time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%d", exchange, symbol, interval, bucketStart.UnixMilli())
}

// Put stores a single candle in the cache.
func (c *CandleCache) Put(exchange, symbol, interval string, candle models.OHLCV) error {
	blob, err := json.Marshal(candle)
	if err != nil {
		return fmt.Errorf("candle cache marshal: %w", err)
	}
	key := candleKey(exchange, symbol, interval, candle.Timestamp)
	return c.store.Write(candleCacheNamespace, key, blob)
}

// PutAll stores a batch of candles.
func (c *CandleCache) PutAll(exchange, symbol, interval string, candles []models.OHLCV) error {
	for _, candle := range candles {
		if err := c.Put(exchange, symbol, interval, candle); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves one cached candle, if present.
func (c *CandleCache) Get(exchange, symbol, interval string, bucketStart time.Time) (models.OHLCV, bool, error) {
	blob, err := c.store.Read(candleCacheNamespace, candleKey(exchange, symbol, interval, bucketStart))
	if err == ErrNotFound {
		return models.OHLCV{}, false, nil
	}
	if err != nil {
		return models.OHLCV{}, false, err
	}
	var candle models.OHLCV
	if err := json.Unmarshal(blob, &candle); err != nil {
		return models.OHLCV{}, false, fmt.Errorf("candle cache unmarshal: %w", err)
	}
	return candle, true, nil
}
