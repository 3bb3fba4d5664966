package strategies

import (
	"testing"
	"time"

	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nycTime(year int, month time.Month, day, hour, minute int) time.Time {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func TestNYCCloseOpen_OpensLongAtMarketClose(t *testing.T) {
	// 2026-01-05 is a Monday.
	ts := nycTime(2026, 1, 5, 16, 0)
	candle := models.OHLCV{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	provider := &fakeProvider{name: "fake", candles: []models.OHLCV{candle}}
	ex := exchange.New(provider)

	s := NewNYCCloseOpen(ex, "risk-a", nil)
	require.NoError(t, s.Init(nil))

	ctx := tickContext(ts.Add(time.Minute), false)
	dto, err := s.GetSignal(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, dto)
	assert.Equal(t, models.SideLong, dto.Position)
}

func TestNYCCloseOpen_OpensShortBeforeOpen(t *testing.T) {
	ts := nycTime(2026, 1, 6, 8, 30)
	candle := models.OHLCV{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	provider := &fakeProvider{name: "fake", candles: []models.OHLCV{candle}}
	ex := exchange.New(provider)

	s := NewNYCCloseOpen(ex, "risk-a", nil)
	require.NoError(t, s.Init(nil))

	ctx := tickContext(ts.Add(time.Minute), false)
	dto, err := s.GetSignal(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, dto)
	assert.Equal(t, models.SideShort, dto.Position)
}

func TestNYCCloseOpen_NoSignalOutsideWindow(t *testing.T) {
	ts := nycTime(2026, 1, 5, 12, 0)
	candle := models.OHLCV{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	provider := &fakeProvider{name: "fake", candles: []models.OHLCV{candle}}
	ex := exchange.New(provider)

	s := NewNYCCloseOpen(ex, "risk-a", nil)
	require.NoError(t, s.Init(nil))

	ctx := tickContext(ts.Add(time.Minute), false)
	dto, err := s.GetSignal(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, dto)
}

func TestNYCCloseOpen_NoSignalOnWeekend(t *testing.T) {
	// 2026-01-03 is a Saturday.
	ts := nycTime(2026, 1, 3, 16, 0)
	candle := models.OHLCV{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	provider := &fakeProvider{name: "fake", candles: []models.OHLCV{candle}}
	ex := exchange.New(provider)

	s := NewNYCCloseOpen(ex, "risk-a", nil)
	require.NoError(t, s.Init(nil))

	ctx := tickContext(ts.Add(time.Minute), false)
	dto, err := s.GetSignal(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, dto)
}
