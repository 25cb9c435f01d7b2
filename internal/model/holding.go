package model

// Holding source kinds.
const (
	SourcePosition    = "position"
	SourceTransaction = "transaction"
)

// Holding is the merged per-symbol view of a user's ownership, derived fresh
// each run from positions plus unprocessed transactions. Invariant while
// Quantity > 0: CostBasisPerShare == TotalCost / Quantity.
type Holding struct {
	Symbol            string
	Quantity          float64
	CostBasisPerShare float64
	TotalCost         float64
	PortfolioID       string
	Source            string
}
