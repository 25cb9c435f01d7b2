// Package valuation turns merged holdings and a quote map into the per-user
// summary numbers the UI charts from.
package valuation

import (
	"portfoliopulse/internal/holdings"
	"portfoliopulse/internal/model"
)

// HistoryCap bounds the summary history: 48 points at a 15-minute cadence is
// roughly 12 hours of chart.
const HistoryCap = 48

// TotalValue computes the market value of the open holdings. A symbol with
// no quote this run contributes zero, and the total is clamped at zero so a
// bad quote can never push a portfolio negative.
func TotalValue(merged map[string]model.Holding, quotes map[string]model.Quote) float64 {
	total := 0.0
	for sym, h := range merged {
		if holdings.Closed(h) {
			continue
		}
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		total += h.Quantity * q.Price
	}
	if total < 0 {
		return 0
	}
	return total
}

// AppendHistory appends one sample and evicts from the front until the
// sequence is back under HistoryCap. Order stays oldest-first.
func AppendHistory(history []model.HistoryPoint, point model.HistoryPoint) []model.HistoryPoint {
	history = append(history, point)
	if len(history) > HistoryCap {
		history = history[len(history)-HistoryCap:]
	}
	return history
}
