package model

import (
	"math"
	"strings"
	"time"
)

// CanonicalKey builds the deterministic document id that guarantees at most
// one position per (owner, symbol).
func CanonicalKey(ownerID, symbol string) string {
	return ownerID + "_" + strings.ToUpper(symbol)
}

// Position is a persisted, possibly legacy, per-symbol ownership record.
// Consolidated positions live under the canonical `{ownerID}_{symbol}` id;
// anything else is a legacy auto-ID row awaiting cleanup.
type Position struct {
	DocID             string
	OwnerID           string
	Symbol            string
	Quantity          float64
	CostBasisPerShare float64
	PortfolioID       string
	CreatedAt         time.Time
}

// IsCanonical reports whether the row already lives under its canonical id.
func (p *Position) IsCanonical() bool {
	return strings.HasPrefix(p.DocID, p.OwnerID+"_")
}

// Valid rejects rows that would poison the merge arithmetic.
func (p *Position) Valid() bool {
	if p.OwnerID == "" || strings.TrimSpace(p.Symbol) == "" {
		return false
	}
	return isFinite(p.Quantity) && isFinite(p.CostBasisPerShare)
}

// Transaction types.
const (
	TxBuy  = "buy"
	TxSell = "sell"
)

// Transaction is an immutable buy/sell event. ProcessedAt is nil until a
// refresh run folds it into holdings; after that it is stamped and never
// reprocessed (archival, not deletion).
type Transaction struct {
	DocID           string
	OwnerID         string
	Symbol          string
	Type            string
	Quantity        float64
	PricePerShare   float64
	PortfolioID     string
	TransactionDate time.Time
	ProcessedAt     *time.Time
}

// IsSell reports whether the transaction reduces the holding. Anything that
// is not explicitly a sell counts as a buy, matching how rows were written
// before the type field became mandatory.
func (t *Transaction) IsSell() bool {
	return strings.EqualFold(t.Type, TxSell)
}

// Valid rejects rows that would poison the merge arithmetic.
func (t *Transaction) Valid() bool {
	if t.OwnerID == "" || strings.TrimSpace(t.Symbol) == "" {
		return false
	}
	if !isFinite(t.Quantity) || t.Quantity <= 0 {
		return false
	}
	return isFinite(t.PricePerShare) && t.PricePerShare >= 0
}

// Quote is one symbol's price snapshot for the current run.
type Quote struct {
	Symbol        string
	Price         float64
	Change        float64
	PercentChange float64
	FetchedAt     time.Time
}

// Watchlist tracks symbols a user prices without owning.
type Watchlist struct {
	OwnerID string
	Symbols []string
}

// HistoryPoint is one sample of a user's total portfolio value.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// UserSummary is the per-user rollup the UI charts from. SubscriptionTier is
// owned by the billing webhook; refresh writes must never touch it.
type UserSummary struct {
	OwnerID          string
	TotalValue       float64
	LastUpdated      time.Time
	History          []HistoryPoint
	SubscriptionTier string
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
