// Package exchange is the Exchange Adapter (spec.md §4.3): it wraps a
// data.DataProvider with the no-look-ahead discipline the tick engine
// depends on. Every read is clamped to the current Execution Clock
// instant except getNextCandles, which the Tick Engine alone is trusted
// to call while it owns the advancement of "when" during a backtest.
//
// It is grounded on data.DataProvider (the existing historical/latest
// price interface) and the providers/ package's concrete
// implementations (binance, yahoo, tiingo, ccxt), generalized with the
// clock-aware range clamp spec.md's Exchange Adapter requires.
package exchange

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/northbeam/tickengine/clock"
	"github.com/northbeam/tickengine/data"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/store"
)

// ExchangeError wraps any upstream provider failure.
type ExchangeError struct {
	Exchange string
	Op       string
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange %s: %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// LookAheadError is returned when a requested range would read past the
// Execution Clock's current instant.
type LookAheadError struct {
	Exchange string
	When     time.Time
	Resolved time.Time
}

func (e *LookAheadError) Error() string {
	return fmt.Sprintf("exchange %s: requested range end %s is past current tick %s",
		e.Exchange, e.Resolved, e.When)
}

// Adapter wraps a data.DataProvider and enforces the clock discipline.
type Adapter struct {
	provider data.DataProvider
	cache    *store.CandleCache
}

// New wraps provider as an Exchange Adapter.
func New(provider data.DataProvider) *Adapter {
	return &Adapter{provider: provider}
}

// WithCache attaches a Candle Cache the adapter reads through and writes
// behind on every range query. Optional: an Adapter with no cache behaves
// exactly as before, always hitting the underlying provider.
func (a *Adapter) WithCache(cache *store.CandleCache) *Adapter {
	a.cache = cache
	return a
}

// cachedRange attempts to fully satisfy [start, end) from the cache at the
// given interval's bucket granularity. ok is false if any bucket misses,
// in which case the caller must fall back to the provider.
func (a *Adapter) cachedRange(symbol, interval string, start, end time.Time) ([]models.OHLCV, bool) {
	if a.cache == nil {
		return nil, false
	}
	step := intervalToDuration(interval)
	var out []models.OHLCV
	for bucket := start; bucket.Before(end); bucket = bucket.Add(step) {
		candle, ok, err := a.cache.Get(a.provider.Name(), symbol, interval, bucket)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("exchange: candle cache read failed")
			return nil, false
		}
		if !ok {
			return nil, false
		}
		out = append(out, candle)
	}
	return out, true
}

func (a *Adapter) fillCache(symbol, interval string, candles []models.OHLCV) {
	if a.cache == nil || len(candles) == 0 {
		return
	}
	if err := a.cache.PutAll(a.provider.Name(), symbol, interval, candles); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("exchange: candle cache write failed")
	}
}

// Name returns the underlying provider's name (e.g. "binance", "yahoo").
func (a *Adapter) Name() string {
	return a.provider.Name()
}

func intervalToDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	default:
		return time.Minute
	}
}

// GetCandles returns the most recent limit candles whose close does not
// exceed the Execution Clock's current instant.
func (a *Adapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.OHLCV, error) {
	when := clock.Current(ctx).When
	step := intervalToDuration(interval)
	start := when.Add(-step * time.Duration(limit*3+5))

	candles, err := a.provider.GetHistoricalData(symbol, start, when, interval)
	if err != nil {
		return nil, &ExchangeError{Exchange: a.provider.Name(), Op: "getCandles", Err: err}
	}

	filtered := make([]models.OHLCV, 0, len(candles))
	for _, c := range candles {
		if !c.Timestamp.After(when) {
			filtered = append(filtered, c)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })

	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	a.fillCache(symbol, interval, filtered)
	return filtered, nil
}

// GetNextCandles is forward-looking and permitted only while the caller
// is the Tick Engine replaying a backtest and owns the advancement of
// "when" itself; called from any other context it is a look-ahead by
// definition.
func (a *Adapter) GetNextCandles(ctx context.Context, symbol, interval string, limit int) ([]models.OHLCV, error) {
	tick := clock.Current(ctx)
	if !tick.Backtest {
		return nil, &ExchangeError{
			Exchange: a.provider.Name(),
			Op:       "getNextCandles",
			Err:      fmt.Errorf("permitted only during a backtest replay"),
		}
	}

	step := intervalToDuration(interval)
	end := tick.When.Add(step * time.Duration(limit+1))

	candles, err := a.provider.GetHistoricalData(symbol, tick.When, end, interval)
	if err != nil {
		return nil, &ExchangeError{Exchange: a.provider.Name(), Op: "getNextCandles", Err: err}
	}

	filtered := make([]models.OHLCV, 0, len(candles))
	for _, c := range candles {
		if c.Timestamp.After(tick.When) {
			filtered = append(filtered, c)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// GetRawCandles is a flexible range query. If eDate is provided it must
// not exceed the current tick; if absent, the tick's own instant is used
// as the resolved end.
func (a *Adapter) GetRawCandles(ctx context.Context, symbol, interval string, limit int, sDate, eDate *time.Time) ([]models.OHLCV, error) {
	when := clock.Current(ctx).When

	resolvedEnd := when
	if eDate != nil {
		resolvedEnd = *eDate
	}
	if resolvedEnd.After(when) {
		return nil, &LookAheadError{Exchange: a.provider.Name(), When: when, Resolved: resolvedEnd}
	}

	resolvedStart := resolvedEnd.Add(-intervalToDuration(interval) * time.Duration(limit+1))
	if sDate != nil {
		resolvedStart = *sDate
	}

	if cached, ok := a.cachedRange(symbol, interval, resolvedStart, resolvedEnd); ok {
		sort.Slice(cached, func(i, j int) bool { return cached[i].Timestamp.Before(cached[j].Timestamp) })
		if limit > 0 && len(cached) > limit {
			cached = cached[len(cached)-limit:]
		}
		return cached, nil
	}

	candles, err := a.provider.GetHistoricalData(symbol, resolvedStart, resolvedEnd, interval)
	if err != nil {
		return nil, &ExchangeError{Exchange: a.provider.Name(), Op: "getRawCandles", Err: err}
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	a.fillCache(symbol, interval, candles)
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// GetAveragePrice returns the volume-weighted average of the typical
// price (H+L+C)/3 over the last 5 one-minute candles. If total volume is
// zero it falls back to the last candle's close.
func (a *Adapter) GetAveragePrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := a.GetCandles(ctx, symbol, "1m", 5)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, &ExchangeError{Exchange: a.provider.Name(), Op: "getAveragePrice", Err: fmt.Errorf("no candles available")}
	}

	var weightedSum, totalVolume float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		weightedSum += typical * c.Volume
		totalVolume += c.Volume
	}
	if totalVolume == 0 {
		return candles[len(candles)-1].Close, nil
	}
	return weightedSum / totalVolume, nil
}
