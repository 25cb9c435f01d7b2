// Package refresh drives one scheduled valuation/reconciliation run:
// snapshot the collections, price the symbol universe once, then merge,
// persist and value each user's holdings. One user's failure never stops
// the loop over the rest.
package refresh

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"portfoliopulse/internal/holdings"
	"portfoliopulse/internal/model"
	"portfoliopulse/internal/quote"
	"portfoliopulse/internal/store"
	"portfoliopulse/internal/valuation"
)

// Runner executes refresh runs against a store and a quote fetcher. It is
// stateless between runs.
type Runner struct {
	Store   store.Store
	Fetcher quote.Fetcher
}

// NewRunner creates a new Runner.
func NewRunner(st store.Store, f quote.Fetcher) *Runner {
	return &Runner{Store: st, Fetcher: f}
}

// snapshot is the consistent input a run operates on. It is taken once at
// the start; the run never re-reads the collections.
type snapshot struct {
	positions    []model.Position
	transactions []model.Transaction
	watchlists   []model.Watchlist
	summaries    []model.UserSummary
}

// Run executes one refresh. A returned error means the run aborted; price
// writes already committed stand, since stale prices are harmless.
func (r *Runner) Run(ctx context.Context, now time.Time) error {
	snap, err := r.takeSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot collections: %w", err)
	}

	symbols := gatherSymbols(snap)
	if len(symbols) == 0 {
		log.Println("[INFO] no symbols to process, run complete")
		return nil
	}

	quotes := quote.FetchAll(ctx, r.Fetcher, symbols)
	log.Printf("[INFO] fetched %d/%d quotes", len(quotes), len(symbols))

	priceBatch := &store.Batch{}
	for _, q := range quotes {
		if q.FetchedAt.IsZero() {
			q.FetchedAt = now
		}
		priceBatch.PutLatestPrice(q)
	}
	if err := r.Store.Commit(ctx, priceBatch); err != nil {
		return fmt.Errorf("commit price snapshot: %w", err)
	}

	summaryBatch := &store.Batch{}
	for _, ownerID := range discoverUsers(snap) {
		if err := r.processUser(ctx, ownerID, snap, quotes, now, summaryBatch); err != nil {
			log.Printf("[ERROR] process user %s: %v", ownerID, err)
			continue
		}
	}

	if err := r.Store.Commit(ctx, summaryBatch); err != nil {
		return fmt.Errorf("commit summaries: %w", err)
	}
	log.Printf("[INFO] refresh complete, %d summaries updated", summaryBatch.Len())
	return nil
}

// processUser merges, persists and values one user's holdings. The holdings
// batch commits here, per user; the summary write only queues onto the
// run-wide batch. Panics from malformed data are converted to an error at
// this boundary so the loop survives.
func (r *Runner) processUser(ctx context.Context, ownerID string, snap *snapshot, quotes map[string]model.Quote, now time.Time, summaryBatch *store.Batch) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	var userPositions []model.Position
	for _, p := range snap.positions {
		if p.OwnerID == ownerID {
			userPositions = append(userPositions, p)
		}
	}
	var userTxs []model.Transaction
	for _, t := range snap.transactions {
		if t.OwnerID == ownerID {
			userTxs = append(userTxs, t)
		}
	}

	merged := holdings.Merge(userPositions, userTxs)

	if holdings.NeedsSync(userPositions, userTxs) {
		b := &store.Batch{}
		for sym, h := range merged {
			docID := model.CanonicalKey(ownerID, sym)
			if holdings.Closed(h) {
				b.DeletePosition(docID)
				continue
			}
			b.UpsertPosition(model.Position{
				DocID:             docID,
				OwnerID:           ownerID,
				Symbol:            sym,
				Quantity:          h.Quantity,
				CostBasisPerShare: h.CostBasisPerShare,
				PortfolioID:       h.PortfolioID,
				CreatedAt:         now,
			})
		}
		// Legacy auto-ID rows are superseded by the canonical docs.
		for _, p := range userPositions {
			if !p.IsCanonical() {
				b.DeletePosition(p.DocID)
			}
		}
		for _, t := range userTxs {
			b.MarkTransactionProcessed(t.DocID, now)
		}
		if err := r.Store.Commit(ctx, b); err != nil {
			return fmt.Errorf("commit holdings batch: %w", err)
		}
		log.Printf("[INFO] holdings consolidated for %s (%d ops)", ownerID, b.Len())
	}

	total := valuation.TotalValue(merged, quotes)

	var history []model.HistoryPoint
	for _, u := range snap.summaries {
		if u.OwnerID == ownerID {
			history = u.History
			break
		}
	}
	history = valuation.AppendHistory(history, model.HistoryPoint{Timestamp: now, Value: total})

	summaryBatch.MergeUserSummary(store.SummaryUpdate{
		OwnerID:     ownerID,
		TotalValue:  total,
		LastUpdated: now,
		History:     history,
	})
	return nil
}

func (r *Runner) takeSnapshot(ctx context.Context) (*snapshot, error) {
	positions, err := r.Store.Positions(ctx)
	if err != nil {
		return nil, err
	}
	transactions, err := r.Store.UnprocessedTransactions(ctx)
	if err != nil {
		return nil, err
	}
	watchlists, err := r.Store.Watchlists(ctx)
	if err != nil {
		return nil, err
	}
	summaries, err := r.Store.UserSummaries(ctx)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		positions:    positions,
		transactions: transactions,
		watchlists:   watchlists,
		summaries:    summaries,
	}, nil
}

// gatherSymbols unions the symbols referenced by positions, pending
// transactions and watchlists, upper-cased and deduplicated.
func gatherSymbols(snap *snapshot) []string {
	seen := make(map[string]bool)
	add := func(sym string) {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			seen[sym] = true
		}
	}
	for _, p := range snap.positions {
		add(p.Symbol)
	}
	for _, t := range snap.transactions {
		add(t.Symbol)
	}
	for _, w := range snap.watchlists {
		for _, sym := range w.Symbols {
			add(sym)
		}
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// discoverUsers unions summary owners with position and transaction owners,
// so a brand-new user with holdings but no summary yet still gets valuated.
func discoverUsers(snap *snapshot) []string {
	seen := make(map[string]bool)
	for _, u := range snap.summaries {
		if u.OwnerID != "" {
			seen[u.OwnerID] = true
		}
	}
	for _, p := range snap.positions {
		if p.OwnerID != "" {
			seen[p.OwnerID] = true
		}
	}
	for _, t := range snap.transactions {
		if t.OwnerID != "" {
			seen[t.OwnerID] = true
		}
	}
	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
