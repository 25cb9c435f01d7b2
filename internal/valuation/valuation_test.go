package valuation

import (
	"testing"
	"time"

	"portfoliopulse/internal/model"
)

func TestTotalValue(t *testing.T) {
	merged := map[string]model.Holding{
		"AAPL": {Symbol: "AAPL", Quantity: 10},
		"MSFT": {Symbol: "MSFT", Quantity: 2},
	}
	quotes := map[string]model.Quote{
		"AAPL": {Symbol: "AAPL", Price: 150},
		"MSFT": {Symbol: "MSFT", Price: 300},
	}
	if got := TotalValue(merged, quotes); got != 2100 {
		t.Errorf("expected 2100, got %v", got)
	}
}

func TestTotalValue_MissingQuoteContributesZero(t *testing.T) {
	merged := map[string]model.Holding{
		"AAPL": {Symbol: "AAPL", Quantity: 10},
		"ZZZZ": {Symbol: "ZZZZ", Quantity: 100},
	}
	quotes := map[string]model.Quote{
		"AAPL": {Symbol: "AAPL", Price: 150},
	}
	if got := TotalValue(merged, quotes); got != 1500 {
		t.Errorf("expected missing quote to contribute 0, got %v", got)
	}
}

func TestTotalValue_ClampsNegative(t *testing.T) {
	merged := map[string]model.Holding{
		"AAPL": {Symbol: "AAPL", Quantity: 10},
	}
	quotes := map[string]model.Quote{
		"AAPL": {Symbol: "AAPL", Price: -5},
	}
	if got := TotalValue(merged, quotes); got != 0 {
		t.Errorf("expected clamp to 0 on negative price anomaly, got %v", got)
	}
}

func TestTotalValue_SkipsClosedHoldings(t *testing.T) {
	merged := map[string]model.Holding{
		"AAPL": {Symbol: "AAPL", Quantity: 0},
		"MSFT": {Symbol: "MSFT", Quantity: 1},
	}
	quotes := map[string]model.Quote{
		"AAPL": {Symbol: "AAPL", Price: 150},
		"MSFT": {Symbol: "MSFT", Price: 300},
	}
	if got := TotalValue(merged, quotes); got != 300 {
		t.Errorf("expected closed holding excluded, got %v", got)
	}
}

func TestAppendHistory_CapAndOrder(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []model.HistoryPoint
	for i := 0; i < HistoryCap+10; i++ {
		history = AppendHistory(history, model.HistoryPoint{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Value:     float64(i),
		})
	}
	if len(history) != HistoryCap {
		t.Fatalf("expected history capped at %d, got %d", HistoryCap, len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Fatal("expected history oldest-first")
		}
	}
	if history[len(history)-1].Value != float64(HistoryCap+9) {
		t.Errorf("expected newest point last, got %v", history[len(history)-1].Value)
	}
	if history[0].Value != 10 {
		t.Errorf("expected oldest points evicted from the front, got %v", history[0].Value)
	}
}
