package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbeam/tickengine/api"
	"github.com/northbeam/tickengine/config"
	"github.com/northbeam/tickengine/controller"
	"github.com/northbeam/tickengine/data"
	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/execution"
	"github.com/northbeam/tickengine/instance"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/risk"
	"github.com/northbeam/tickengine/signalfsm"
	"github.com/northbeam/tickengine/store"
	"github.com/northbeam/tickengine/strategies"
	"github.com/northbeam/tickengine/tick"
)

// TestableDataProvider implements data.DataProvider with deterministic test data.
type TestableDataProvider struct {
	priceData map[string][]models.OHLCV
}

// Name returns the provider name.
func (p *TestableDataProvider) Name() string { return "TestProvider" }

// GetLatestPrice returns the most recent close price for the given symbol.
func (p *TestableDataProvider) GetLatestPrice(symbol string) (float64, error) {
	d, ok := p.priceData[symbol]
	if !ok || len(d) == 0 {
		return 0, fmt.Errorf("no data for symbol: %s", symbol)
	}
	return d[len(d)-1].Close, nil
}

// GetTicker returns ticker information for the given symbol.
func (p *TestableDataProvider) GetTicker(symbol string) (*models.Ticker, error) {
	if _, ok := p.priceData[symbol]; !ok {
		return nil, fmt.Errorf("no data for symbol: %s", symbol)
	}
	return &models.Ticker{Symbol: symbol}, nil
}

// GetHistoricalData returns historical OHLCV data for the given symbol.
func (p *TestableDataProvider) GetHistoricalData(symbol string, start, end time.Time, interval string) ([]models.OHLCV, error) {
	d, ok := p.priceData[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for symbol: %s", symbol)
	}
	return d, nil
}

// generateCrossoverData creates OHLCV data that will trigger an MA crossover buy signal.
// The data rises gradually and then jumps by 50 over its final 49 candles,
// ensuring the fast MA crosses above the slow MA.
func generateCrossoverData(symbol string, days int) []models.OHLCV {
	now := time.Now()
	prices := make([]models.OHLCV, 0, days)

	for i := 0; i < days; i++ {
		// Gradual uptrend with a large jump at the very end
		price := 100.0 + float64(i)*0.5
		if i > days-50 {
			price += 50.0 // Sharp jump to force fast MA above slow MA
		}

		prices = append(prices, models.OHLCV{
			Timestamp: now.AddDate(0, 0, i-days),
			Symbol:    symbol,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		})
	}
	return prices
}

// newMemController builds a Controller over an in-memory signal store, with
// no settlement layer, for tests that only need the Controller's tick-level
// behavior and not the paper-trading accounting side effects.
func newMemController(t *testing.T, provider data.DataProvider) *controller.Controller {
	t.Helper()
	signalDB, err := store.Open(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { signalDB.Close() })
	signals, err := store.NewSignalStore(signalDB)
	require.NoError(t, err)

	eng := tick.New(exchange.New(provider), risk.New(), eventbus.New(), signals, signalfsm.DefaultFees())
	return controller.New(instance.New(), strategies.NewRegistry(), eng, t.TempDir(), nil)
}

// TestSystemFlow_HealthEndpoint verifies the health endpoint works with
// real (non-mock) components.
func TestSystemFlow_HealthEndpoint(t *testing.T) {
	cfg := &config.Config{
		TradingMode:    "paper",
		ServerPort:     0,
		LogLevel:       "error",
		AllowedOrigins: []string{"*"},
	}
	registry := strategies.NewRegistry()
	provider := &TestableDataProvider{priceData: map[string][]models.OHLCV{}}
	router := api.NewRouter(cfg, registry, provider, nil, nil, nil, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "paper", body["mode"])
}

// TestSystemFlow_StrategyList verifies strategy listing with a real registry.
func TestSystemFlow_StrategyList(t *testing.T) {
	cfg := &config.Config{
		TradingMode:    "paper",
		AllowedOrigins: []string{"*"},
	}
	registry := strategies.NewRegistry()
	provider := &TestableDataProvider{priceData: map[string][]models.OHLCV{}}
	registry.Register(strategies.NewMACrossover(exchange.New(provider), "", nil))

	router := api.NewRouter(cfg, registry, provider, nil, nil, nil, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/api/v1/strategies")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	strats := body["strategies"].([]interface{})
	assert.Len(t, strats, 1)
}

// TestSystemFlow_OrderPlacement verifies placing an order through the API
// with a real PaperBroker, OrderManager, and SQLite database.
func TestSystemFlow_OrderPlacement(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &config.Config{
		TradingMode:    "paper",
		AllowedOrigins: []string{"*"},
	}

	db, err := data.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	orderStore := data.NewOrderStore(db)
	broker := execution.NewPaperBroker(100000.0)
	require.NoError(t, broker.Connect())

	orderManager := execution.NewOrderManager(broker, nil, orderStore, nil)
	registry := strategies.NewRegistry()
	provider := &TestableDataProvider{priceData: map[string][]models.OHLCV{}}

	// PaperBroker requires a price set for market orders
	broker.SetPrice("AAPL", 150.0)
	router := api.NewRouter(cfg, registry, provider, orderManager, nil, nil, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	client := server.Client()

	// Place a market buy order
	payload := map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "buy",
		"type":     "market",
		"quantity": 10,
	}
	body, _ := json.Marshal(payload)
	resp, err := client.Post(server.URL+"/api/v1/execution/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var orderResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orderResp))
	assert.Equal(t, "AAPL", orderResp["symbol"])
	assert.NotEmpty(t, orderResp["id"])

	// Verify order visible via GET /execution/orders
	resp, err = client.Get(server.URL + "/api/v1/execution/orders")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ordersResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ordersResp))
	orders := ordersResp["orders"].([]interface{})
	assert.NotEmpty(t, orders, "Expected at least one order in the list")

	// Verify order persisted to DB
	dbOrders, err := orderStore.GetAllOrders()
	require.NoError(t, err)
	assert.NotEmpty(t, dbOrders, "Expected order to be persisted in DB")
}

// TestSystemFlow_InstanceLifecycle verifies running and stopping a tick
// instance via the API, driven by a real Controller, Tick Engine and
// Instance Registry.
func TestSystemFlow_InstanceLifecycle(t *testing.T) {
	cfg := &config.Config{
		TradingMode:       "paper",
		AllowedOrigins:    []string{"*"},
		EnabledStrategies: []string{"ma_crossover"},
	}

	testData := generateCrossoverData("AAPL", 300)
	provider := &TestableDataProvider{
		priceData: map[string][]models.OHLCV{
			"AAPL": testData,
		},
	}

	registry := strategies.NewRegistry()
	registry.Register(strategies.NewMACrossover(exchange.New(provider), "", nil))

	ctrl := newMemController(t, provider)
	ctrl.Strategies = registry

	router := api.NewRouter(cfg, registry, provider, nil, ctrl, nil, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	client := server.Client()

	// Run one live tick for the AAPL/ma_crossover instance.
	resp, err := client.Post(server.URL+"/api/v1/instances/AAPL/ma_crossover/run", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runResp))
	assert.NotEmpty(t, runResp["action"])

	// Instance data should now be visible.
	resp, err = client.Get(server.URL + "/api/v1/instances/AAPL/ma_crossover/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Stop the instance.
	resp, err = client.Post(server.URL+"/api/v1/instances/AAPL/ma_crossover/stop", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stopResp map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stopResp))
	assert.Equal(t, "stopped", stopResp["status"])

	// The instance registry should now list the stopped instance.
	resp, err = client.Get(server.URL + "/api/v1/instances")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestSystemFlow_BacktestEndToEnd verifies running a backtest through the API
// with real strategy and provider, then retrieving the result.
func TestSystemFlow_BacktestEndToEnd(t *testing.T) {
	cfg := &config.Config{
		TradingMode:    "paper",
		AllowedOrigins: []string{"*"},
	}

	registry := strategies.NewRegistry()
	testData := generateCrossoverData("AAPL", 300)
	provider := &TestableDataProvider{
		priceData: map[string][]models.OHLCV{
			"AAPL": testData,
		},
	}
	registry.Register(strategies.NewMACrossover(exchange.New(provider), "", nil))

	router := api.NewRouter(cfg, registry, provider, nil, nil, nil, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	client := server.Client()

	// Run backtest
	payload := map[string]interface{}{
		"strategy":        "ma_crossover",
		"symbol":          "AAPL",
		"start":           time.Now().AddDate(0, -6, 0).Format(time.RFC3339),
		"end":             time.Now().Format(time.RFC3339),
		"initial_capital": 10000,
	}
	body, _ := json.Marshal(payload)
	resp, err := client.Post(server.URL+"/api/v1/backtests", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var runResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runResp))
	assert.Equal(t, "completed", runResp["status"])
	btID := runResp["id"].(string)
	assert.NotEmpty(t, btID)

	// Retrieve backtest result
	resp, err = client.Get(server.URL + "/api/v1/backtests/" + btID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resultResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&resultResp))
	assert.Equal(t, btID, resultResp["id"])
	assert.Equal(t, "completed", resultResp["status"])
	assert.NotNil(t, resultResp["metrics"])
}

// TestSystemFlow_PortfolioSummary verifies the portfolio summary endpoint
// with a real PaperBroker.
func TestSystemFlow_PortfolioSummary(t *testing.T) {
	cfg := &config.Config{
		TradingMode:    "paper",
		AllowedOrigins: []string{"*"},
	}

	broker := execution.NewPaperBroker(100000.0)
	require.NoError(t, broker.Connect())

	orderManager := execution.NewOrderManager(broker, nil, nil, nil)
	registry := strategies.NewRegistry()
	provider := &TestableDataProvider{priceData: map[string][]models.OHLCV{}}

	router := api.NewRouter(cfg, registry, provider, orderManager, nil, nil, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/api/v1/portfolio/summary")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body["balance"])
}
