package quote

import (
	"context"
	"fmt"

	"portfoliopulse/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Symbols absent from Prices (or listed in Fail) report an error.
type MockFetcher struct {
	Prices map[string]float64
	Fail   map[string]bool
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchQuote(_ context.Context, symbol string) (model.Quote, error) {
	if m.Fail[symbol] {
		return model.Quote{}, fmt.Errorf("mock failure for %s", symbol)
	}
	price, ok := m.Prices[symbol]
	if !ok {
		return model.Quote{}, fmt.Errorf("no mock price for %s", symbol)
	}
	return model.Quote{Symbol: symbol, Price: price}, nil
}
