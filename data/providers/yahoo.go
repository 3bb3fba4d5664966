// Package providers contains data provider implementations.
package providers

import (
	"fmt"
	"time"

	"github.com/northbeam/tickengine/models"
)

// YahooProvider fetches market data from Yahoo Finance.
// This is a stub implementation - actual API integration to be added.
type YahooProvider struct {
	// apiKey is optional for Yahoo Finance
	apiKey string
}

// NewYahooProvider creates a new YahooProvider instance.
//
// Args:
//   - apiKey: Optional API key for rate limiting
//
// Returns:
//   - *YahooProvider: The provider instance
func NewYahooProvider(apiKey string) *YahooProvider {
	return &YahooProvider{
		apiKey: apiKey,
	}
}

// Name returns the provider name.
func (p *YahooProvider) Name() string {
	return "yahoo"
}

// GetHistoricalData fetches OHLCV data from Yahoo Finance.
// TODO: Implement actual Yahoo Finance API integration.
//
// Args:
//   - symbol: Ticker symbol (e.g., "AAPL")
//   - start: Start date
//   - end: End date
//   - interval: Time interval (e.g., "1d")
//
// Returns:
//   - []models.OHLCV: Historical data
//   - error: Any error encountered
func (p *YahooProvider) GetHistoricalData(symbol string, start, end time.Time, interval string) ([]models.OHLCV, error) {
	// Stub implementation - returns empty data
	// TODO: Implement actual Yahoo Finance API call
	return []models.OHLCV{}, fmt.Errorf("yahoo provider not yet implemented")
}

// GetLatestPrice fetches the current price from Yahoo Finance.
// TODO: Implement actual Yahoo Finance API integration.
//
// Args:
//   - symbol: Ticker symbol
//
// Returns:
//   - float64: Current price
//   - error: Any error encountered
func (p *YahooProvider) GetLatestPrice(symbol string) (float64, error) {
	// Stub implementation
	// TODO: Implement actual Yahoo Finance API call
	return 0.0, fmt.Errorf("yahoo provider not yet implemented")
}

// GetTicker fetches ticker information from Yahoo Finance.
// TODO: Implement actual Yahoo Finance API integration.
//
// Args:
//   - symbol: Ticker symbol
//
// Returns:
//   - *models.Ticker: Ticker information
//   - error: Any error encountered
func (p *YahooProvider) GetTicker(symbol string) (*models.Ticker, error) {
	// Stub implementation
	// TODO: Implement actual Yahoo Finance API call
	return nil, fmt.Errorf("yahoo provider not yet implemented")
}
