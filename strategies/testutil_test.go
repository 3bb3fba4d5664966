package strategies

import (
	"context"
	"time"

	"github.com/northbeam/tickengine/clock"
	"github.com/northbeam/tickengine/models"
)

type fakeProvider struct {
	name    string
	candles []models.OHLCV
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetHistoricalData(symbol string, start, end time.Time, interval string) ([]models.OHLCV, error) {
	var out []models.OHLCV
	for _, c := range f.candles {
		if !c.Timestamp.Before(start) && !c.Timestamp.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeProvider) GetLatestPrice(symbol string) (float64, error) {
	return f.candles[len(f.candles)-1].Close, nil
}

func (f *fakeProvider) GetTicker(symbol string) (*models.Ticker, error) {
	return &models.Ticker{Symbol: symbol}, nil
}

func tickContext(when time.Time, backtest bool) context.Context {
	return clock.WithTick(context.Background(), clock.Tick{Symbol: "TEST", When: when, Backtest: backtest})
}

func candleAt(base time.Time, minute int, close float64) models.OHLCV {
	return models.OHLCV{
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Open:      close, High: close + 1, Low: close - 1, Close: close, Volume: 1,
	}
}
