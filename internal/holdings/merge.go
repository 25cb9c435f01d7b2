// Package holdings merges the two overlapping sources of truth for a user's
// ownership — legacy position rows and unprocessed buy/sell transactions —
// into one authoritative holding per symbol. Everything here is pure: rows
// in, holdings out, no storage access.
package holdings

import (
	"sort"
	"strings"

	"portfoliopulse/internal/model"
)

// CloseEpsilon is the quantity below which a holding counts as fully closed.
const CloseEpsilon = 1e-5

// Closed reports whether the holding is fully closed and must not be
// persisted (a closed holding that was canonical gets deleted instead).
func Closed(h model.Holding) bool {
	return h.Quantity <= CloseEpsilon
}

// Merge consolidates a single user's position rows and unprocessed
// transactions into one holding per symbol. Position rows seed the map:
// duplicate legacy rows for a symbol accumulate quantity, and the stored
// cost basis is trusted as a pre-computed average. Transactions are then
// folded in chronological order: buys recompute the weighted-average cost
// basis, sells only reduce quantity.
//
// The returned map still contains closed holdings (quantity <= CloseEpsilon)
// so the writer can retire their canonical documents; callers valuing the
// portfolio must skip them via Closed.
func Merge(positions []model.Position, transactions []model.Transaction) map[string]model.Holding {
	merged := make(map[string]model.Holding)

	for _, p := range positions {
		if !p.Valid() {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(p.Symbol))
		h := merged[sym]
		h.Symbol = sym
		h.Quantity += p.Quantity
		h.CostBasisPerShare = p.CostBasisPerShare
		h.TotalCost = h.Quantity * h.CostBasisPerShare
		if p.PortfolioID != "" {
			h.PortfolioID = p.PortfolioID
		}
		h.Source = model.SourcePosition
		merged[sym] = h
	}

	// Fold oldest-first so interleaved buys and sells replay chronologically.
	txs := make([]model.Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.Valid() {
			txs = append(txs, t)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TransactionDate.Before(txs[j].TransactionDate)
	})

	for _, t := range txs {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		h, ok := merged[sym]
		if !ok {
			h = model.Holding{Symbol: sym, Source: model.SourceTransaction}
		}
		merged[sym] = fold(h, t)
	}

	return merged
}

// fold applies one transaction to a holding. For a buy the cost basis
// becomes the quantity-weighted average of the old basis and the buy price;
// a sell never touches the basis (realized-gain accounting is elsewhere).
func fold(h model.Holding, t model.Transaction) model.Holding {
	if t.IsSell() {
		h.Quantity -= t.Quantity
		h.TotalCost = h.Quantity * h.CostBasisPerShare
	} else {
		totalBefore := h.Quantity * h.CostBasisPerShare
		txCost := t.Quantity * t.PricePerShare
		h.Quantity += t.Quantity
		if h.Quantity > 0 {
			h.TotalCost = totalBefore + txCost
			h.CostBasisPerShare = h.TotalCost / h.Quantity
		}
	}
	if t.PortfolioID != "" {
		h.PortfolioID = t.PortfolioID
	}
	return h
}

// NeedsSync reports whether the user's holdings have anything to reconcile:
// pending transactions, or legacy position rows not yet under their
// canonical id. When false the writer skips the user entirely, which is
// what makes a repeat run over consolidated data a no-op.
func NeedsSync(positions []model.Position, transactions []model.Transaction) bool {
	if len(transactions) > 0 {
		return true
	}
	for _, p := range positions {
		if !p.IsCanonical() {
			return true
		}
	}
	return false
}
