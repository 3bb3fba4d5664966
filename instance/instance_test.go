package instance

import (
	"sync"
	"testing"

	"github.com/northbeam/tickengine/models"
	"github.com/stretchr/testify/assert"
)

func testKey() models.InstanceKey {
	return models.InstanceKey{Symbol: "AAPL", StrategyName: "rsi", ExchangeName: "yahoo", Backtest: false}
}

func TestGet_MemoizesByKey(t *testing.T) {
	r := New()
	a := r.Get(testKey())
	b := r.Get(testKey())
	assert.Same(t, a, b)
}

func TestGet_DistinctKeysGetDistinctHandles(t *testing.T) {
	r := New()
	a := r.Get(testKey())
	other := testKey()
	other.FrameName = "frame1"
	b := r.Get(other)
	assert.NotSame(t, a, b)
}

func TestClear_RemovesEntryAndRebuildsFresh(t *testing.T) {
	r := New()
	key := testKey()
	h := r.Get(key)
	h.LastSignalAt = 123

	r.Clear(key)
	fresh := r.Get(key)
	assert.NotSame(t, h, fresh)
	assert.Equal(t, int64(0), fresh.LastSignalAt)
}

func TestClearAll_EmptiesRegistry(t *testing.T) {
	r := New()
	r.Get(testKey())
	other := testKey()
	other.Symbol = "BTCUSDT"
	r.Get(other)

	r.ClearAll()
	assert.Empty(t, r.List())
}

func TestList_ReflectsStatus(t *testing.T) {
	r := New()
	key := testKey()
	h := r.Get(key)

	statuses := r.List()
	assert.Equal(t, StatusReady, statuses[key.String()])

	h.Current = &models.Signal{State: models.StateScheduled}
	statuses = r.List()
	assert.Equal(t, StatusPending, statuses[key.String()])

	h.Current.State = models.StateActive
	statuses = r.List()
	assert.Equal(t, StatusFulfilled, statuses[key.String()])

	h.Stopped = true
	statuses = r.List()
	assert.Equal(t, StatusRejected, statuses[key.String()])
}

func TestGet_ConcurrentAccessIsRaceSafe(t *testing.T) {
	r := New()
	key := testKey()

	var wg sync.WaitGroup
	handles := make([]*Handle, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			handles[idx] = r.Get(key)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(handles); i++ {
		assert.Same(t, handles[0], handles[i])
	}
}
