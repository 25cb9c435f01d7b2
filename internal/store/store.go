// Package store is the document store the refresh job reads its snapshot
// from and commits its mutations to. The schema (positions, transactions,
// watchlists, latest_prices, user_summaries) is the wire contract with the
// UI layer, which only ever reads what a run produces.
package store

import (
	"context"
	"time"

	"portfoliopulse/internal/model"
)

// Store provides snapshot reads over the collections plus atomic batch
// writes. A run takes its reads once up front and never re-reads mid-run.
type Store interface {
	Positions(ctx context.Context) ([]model.Position, error)
	UnprocessedTransactions(ctx context.Context) ([]model.Transaction, error)
	Watchlists(ctx context.Context) ([]model.Watchlist, error)
	UserSummaries(ctx context.Context) ([]model.UserSummary, error)

	// Commit applies every operation in the batch atomically: all or none.
	Commit(ctx context.Context, b *Batch) error

	// AddPosition, AddTransaction and PutWatchlist are the user-action write
	// paths (the UI layer's side of the contract). A blank doc id gets an
	// auto-generated one.
	AddPosition(ctx context.Context, p model.Position) (string, error)
	AddTransaction(ctx context.Context, t model.Transaction) (string, error)
	PutWatchlist(ctx context.Context, w model.Watchlist) error

	Close() error
}

// SummaryUpdate is the merge-write a run makes to a user summary. It
// deliberately has no subscription tier field: that column belongs to the
// billing webhook and must survive every refresh untouched.
type SummaryUpdate struct {
	OwnerID     string
	TotalValue  float64
	LastUpdated time.Time
	History     []model.HistoryPoint
}

type opKind int

const (
	opUpsertPosition opKind = iota
	opDeletePosition
	opMarkProcessed
	opPutPrice
	opMergeSummary
)

type op struct {
	kind        opKind
	position    model.Position
	docID       string
	processedAt time.Time
	quote       model.Quote
	summary     SummaryUpdate
}

// Batch accumulates mutations to be committed atomically.
type Batch struct {
	ops []op
}

// Len returns the number of queued operations.
func (b *Batch) Len() int { return len(b.ops) }

// UpsertPosition writes the canonical position document for a holding,
// merging over any existing document at the same id.
func (b *Batch) UpsertPosition(p model.Position) {
	b.ops = append(b.ops, op{kind: opUpsertPosition, position: p})
}

// DeletePosition removes a position document. Deleting an absent document
// is a no-op, so retiring an already-gone canonical doc is safe.
func (b *Batch) DeletePosition(docID string) {
	b.ops = append(b.ops, op{kind: opDeletePosition, docID: docID})
}

// MarkTransactionProcessed stamps a consumed transaction so it is excluded
// from every future run. Archival, not deletion.
func (b *Batch) MarkTransactionProcessed(docID string, at time.Time) {
	b.ops = append(b.ops, op{kind: opMarkProcessed, docID: docID, processedAt: at})
}

// PutLatestPrice overwrites the latest-known price snapshot for a symbol.
func (b *Batch) PutLatestPrice(q model.Quote) {
	b.ops = append(b.ops, op{kind: opPutPrice, quote: q})
}

// MergeUserSummary writes totalValue/lastUpdated/history for a user,
// leaving every other summary field (notably the subscription tier) alone.
func (b *Batch) MergeUserSummary(s SummaryUpdate) {
	b.ops = append(b.ops, op{kind: opMergeSummary, summary: s})
}
