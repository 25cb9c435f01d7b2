package refresh

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliopulse/internal/model"
	"portfoliopulse/internal/quote"
	"portfoliopulse/internal/store"
)

var runTime = time.Date(2025, 6, 1, 14, 15, 0, 0, time.UTC)

// countingStore counts non-empty batch commits and can fail a chosen one,
// to observe writer skips and per-user isolation from outside.
type countingStore struct {
	*store.MemoryStore
	commits  int
	failOnly int // 1-based commit ordinal to fail, 0 = never
}

func (c *countingStore) Commit(ctx context.Context, b *store.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	c.commits++
	if c.commits == c.failOnly {
		return fmt.Errorf("injected commit failure")
	}
	return c.MemoryStore.Commit(ctx, b)
}

func TestRun_ConsolidatesLegacyAndTransactions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	legacyID, err := st.AddPosition(ctx, model.Position{
		OwnerID: "u1", Symbol: "AAPL", Quantity: 10, CostBasisPerShare: 150, PortfolioID: "pf-1",
	})
	require.NoError(t, err)
	txID, err := st.AddTransaction(ctx, model.Transaction{
		OwnerID: "u1", Symbol: "AAPL", Type: model.TxBuy, Quantity: 5, PricePerShare: 180,
		TransactionDate: runTime.Add(-time.Hour),
	})
	require.NoError(t, err)

	runner := NewRunner(st, &quote.MockFetcher{Prices: map[string]float64{"AAPL": 100}})
	require.NoError(t, runner.Run(ctx, runTime))

	canonical, ok := st.Position("u1_AAPL")
	require.True(t, ok, "canonical position must exist")
	assert.Equal(t, 15.0, canonical.Quantity)
	assert.InDelta(t, 160.0, canonical.CostBasisPerShare, 1e-9)
	assert.Equal(t, "pf-1", canonical.PortfolioID)

	_, ok = st.Position(legacyID)
	assert.False(t, ok, "legacy auto-ID row must be deleted")

	tx, ok := st.Transaction(txID)
	require.True(t, ok, "transaction is archived, not deleted")
	require.NotNil(t, tx.ProcessedAt)
	assert.Equal(t, runTime, *tx.ProcessedAt)

	price, ok := st.LatestPrice("AAPL")
	require.True(t, ok)
	assert.Equal(t, 100.0, price.Price)

	summary, ok := st.Summary("u1")
	require.True(t, ok, "summary created lazily on first valuation")
	assert.Equal(t, 1500.0, summary.TotalValue)
	require.Len(t, summary.History, 1)
	assert.Equal(t, 1500.0, summary.History[0].Value)
}

func TestRun_SellToZeroRetiresCanonicalDoc(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	_, err := st.AddPosition(ctx, model.Position{
		DocID: "u1_AAPL", OwnerID: "u1", Symbol: "AAPL", Quantity: 15, CostBasisPerShare: 160,
	})
	require.NoError(t, err)
	_, err = st.AddPosition(ctx, model.Position{
		DocID: "u1_MSFT", OwnerID: "u1", Symbol: "MSFT", Quantity: 2, CostBasisPerShare: 300,
	})
	require.NoError(t, err)
	_, err = st.AddTransaction(ctx, model.Transaction{
		OwnerID: "u1", Symbol: "AAPL", Type: model.TxSell, Quantity: 15, PricePerShare: 200,
		TransactionDate: runTime.Add(-time.Hour),
	})
	require.NoError(t, err)

	runner := NewRunner(st, &quote.MockFetcher{Prices: map[string]float64{"AAPL": 100, "MSFT": 300}})
	require.NoError(t, runner.Run(ctx, runTime))

	_, ok := st.Position("u1_AAPL")
	assert.False(t, ok, "closed holding's canonical doc must be deleted")

	summary, ok := st.Summary("u1")
	require.True(t, ok)
	assert.Equal(t, 600.0, summary.TotalValue, "closed AAPL must not contribute")
}

func TestRun_QuoteFailureDoesNotAbortRun(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	_, err := st.AddPosition(ctx, model.Position{
		DocID: "u1_AAPL", OwnerID: "u1", Symbol: "AAPL", Quantity: 10, CostBasisPerShare: 150,
	})
	require.NoError(t, err)
	_, err = st.AddPosition(ctx, model.Position{
		DocID: "u1_ZZZZ", OwnerID: "u1", Symbol: "ZZZZ", Quantity: 100, CostBasisPerShare: 1,
	})
	require.NoError(t, err)

	runner := NewRunner(st, &quote.MockFetcher{
		Prices: map[string]float64{"AAPL": 150},
		Fail:   map[string]bool{"ZZZZ": true},
	})
	require.NoError(t, runner.Run(ctx, runTime))

	_, ok := st.LatestPrice("AAPL")
	assert.True(t, ok, "surviving symbols still get price snapshots")
	_, ok = st.LatestPrice("ZZZZ")
	assert.False(t, ok)

	summary, ok := st.Summary("u1")
	require.True(t, ok)
	assert.Equal(t, 1500.0, summary.TotalValue, "failed symbol contributes exactly 0")
}

func TestRun_SecondRunSkipsWriter(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{MemoryStore: store.NewMemoryStore()}

	_, err := cs.AddPosition(ctx, model.Position{
		OwnerID: "u1", Symbol: "AAPL", Quantity: 10, CostBasisPerShare: 150,
	})
	require.NoError(t, err)

	runner := NewRunner(cs, &quote.MockFetcher{Prices: map[string]float64{"AAPL": 100}})

	require.NoError(t, runner.Run(ctx, runTime))
	// price batch + holdings batch + summary batch
	assert.Equal(t, 3, cs.commits)

	before, _ := cs.Position("u1_AAPL")
	require.NoError(t, runner.Run(ctx, runTime.Add(15*time.Minute)))
	// price batch + summary batch only: nothing left to reconcile
	assert.Equal(t, 5, cs.commits)

	after, ok := cs.Position("u1_AAPL")
	require.True(t, ok)
	assert.Equal(t, before, after, "consolidated positions untouched by a repeat run")

	summary, _ := cs.Summary("u1")
	assert.Len(t, summary.History, 2, "every run appends one history point")
}

func TestRun_UserFailureDoesNotStopOtherUsers(t *testing.T) {
	ctx := context.Background()
	// Commit order: price batch (1), then holdings batches in sorted user
	// order. Failing commit 2 hits user "a-bad" and spares "z-good".
	cs := &countingStore{MemoryStore: store.NewMemoryStore(), failOnly: 2}

	_, err := cs.AddTransaction(ctx, model.Transaction{
		OwnerID: "a-bad", Symbol: "AAPL", Type: model.TxBuy, Quantity: 1, PricePerShare: 100,
		TransactionDate: runTime.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = cs.AddTransaction(ctx, model.Transaction{
		OwnerID: "z-good", Symbol: "AAPL", Type: model.TxBuy, Quantity: 2, PricePerShare: 100,
		TransactionDate: runTime.Add(-time.Hour),
	})
	require.NoError(t, err)

	runner := NewRunner(cs, &quote.MockFetcher{Prices: map[string]float64{"AAPL": 100}})
	require.NoError(t, runner.Run(ctx, runTime), "one user's failure must not fail the run")

	_, ok := cs.Summary("a-bad")
	assert.False(t, ok, "failed user is skipped this cycle")

	summary, ok := cs.Summary("z-good")
	require.True(t, ok)
	assert.Equal(t, 200.0, summary.TotalValue)
	pos, ok := cs.Position("z-good_AAPL")
	require.True(t, ok)
	assert.Equal(t, 2.0, pos.Quantity)
}

func TestRun_PreservesSubscriptionTierAndHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, st.SetSubscriptionTier(ctx, "u1", "premium"))
	seed := &store.Batch{}
	seed.MergeUserSummary(store.SummaryUpdate{
		OwnerID:     "u1",
		TotalValue:  900,
		LastUpdated: runTime.Add(-15 * time.Minute),
		History:     []model.HistoryPoint{{Timestamp: runTime.Add(-15 * time.Minute), Value: 900}},
	})
	require.NoError(t, st.Commit(ctx, seed))
	_, err := st.AddPosition(ctx, model.Position{
		DocID: "u1_AAPL", OwnerID: "u1", Symbol: "AAPL", Quantity: 10, CostBasisPerShare: 90,
	})
	require.NoError(t, err)

	runner := NewRunner(st, &quote.MockFetcher{Prices: map[string]float64{"AAPL": 100}})
	require.NoError(t, runner.Run(ctx, runTime))

	summary, ok := st.Summary("u1")
	require.True(t, ok)
	assert.Equal(t, "premium", summary.SubscriptionTier, "tier belongs to billing")
	require.Len(t, summary.History, 2)
	assert.Equal(t, 900.0, summary.History[0].Value)
	assert.Equal(t, 1000.0, summary.History[1].Value)
}

func TestRun_WatchlistSymbolsPricedNotValued(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, st.SetSubscriptionTier(ctx, "u1", ""))
	require.NoError(t, st.PutWatchlist(ctx, model.Watchlist{OwnerID: "u1", Symbols: []string{"tsla"}}))

	runner := NewRunner(st, &quote.MockFetcher{Prices: map[string]float64{"TSLA": 250}})
	require.NoError(t, runner.Run(ctx, runTime))

	price, ok := st.LatestPrice("TSLA")
	require.True(t, ok, "watchlist symbols get price snapshots")
	assert.Equal(t, 250.0, price.Price)

	summary, ok := st.Summary("u1")
	require.True(t, ok)
	assert.Equal(t, 0.0, summary.TotalValue, "watching is not owning")
}

func TestRun_EmptyUniverseIsNoop(t *testing.T) {
	cs := &countingStore{MemoryStore: store.NewMemoryStore()}
	runner := NewRunner(cs, &quote.MockFetcher{})
	require.NoError(t, runner.Run(context.Background(), runTime))
	assert.Equal(t, 0, cs.commits, "nothing to price, nothing to write")
}

func TestGatherSymbols(t *testing.T) {
	snap := &snapshot{
		positions:    []model.Position{{OwnerID: "u1", Symbol: "aapl"}, {OwnerID: "u2", Symbol: "AAPL"}},
		transactions: []model.Transaction{{OwnerID: "u1", Symbol: " msft "}},
		watchlists:   []model.Watchlist{{OwnerID: "u3", Symbols: []string{"TSLA", ""}}},
	}
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, gatherSymbols(snap))
}

func TestDiscoverUsers_UnionOfOwners(t *testing.T) {
	snap := &snapshot{
		positions:    []model.Position{{OwnerID: "pos-only", Symbol: "AAPL"}},
		transactions: []model.Transaction{{OwnerID: "tx-only", Symbol: "AAPL"}},
		summaries:    []model.UserSummary{{OwnerID: "summary-only"}},
	}
	assert.Equal(t, []string{"pos-only", "summary-only", "tx-only"}, discoverUsers(snap))
}
