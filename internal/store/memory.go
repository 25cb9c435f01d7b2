package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"portfoliopulse/internal/model"
)

// MemoryStore is an in-memory Store used in tests and local development.
// It mirrors the SQLite merge semantics exactly, including tier
// preservation on summary writes.
type MemoryStore struct {
	mu         sync.Mutex
	positions  map[string]model.Position
	txs        map[string]model.Transaction
	watchlists map[string]model.Watchlist
	summaries  map[string]model.UserSummary
	prices     map[string]model.Quote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions:  make(map[string]model.Position),
		txs:        make(map[string]model.Transaction),
		watchlists: make(map[string]model.Watchlist),
		summaries:  make(map[string]model.UserSummary),
		prices:     make(map[string]model.Quote),
	}
}

func (s *MemoryStore) Positions(_ context.Context) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) UnprocessedTransactions(_ context.Context) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Transaction
	for _, t := range s.txs {
		if t.ProcessedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) Watchlists(_ context.Context) ([]model.Watchlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Watchlist, 0, len(s.watchlists))
	for _, w := range s.watchlists {
		out = append(out, w)
	}
	return out, nil
}

func (s *MemoryStore) UserSummaries(_ context.Context) ([]model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.UserSummary, 0, len(s.summaries))
	for _, u := range s.summaries {
		u.History = append([]model.HistoryPoint(nil), u.History...)
		out = append(out, u)
	}
	return out, nil
}

func (s *MemoryStore) Commit(_ context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range b.ops {
		switch o.kind {
		case opUpsertPosition:
			p := o.position
			if prev, ok := s.positions[p.DocID]; ok && !prev.CreatedAt.IsZero() {
				p.CreatedAt = prev.CreatedAt
			}
			s.positions[p.DocID] = p
		case opDeletePosition:
			delete(s.positions, o.docID)
		case opMarkProcessed:
			if t, ok := s.txs[o.docID]; ok {
				at := o.processedAt
				t.ProcessedAt = &at
				s.txs[o.docID] = t
			}
		case opPutPrice:
			s.prices[o.quote.Symbol] = o.quote
		case opMergeSummary:
			u := s.summaries[o.summary.OwnerID]
			u.OwnerID = o.summary.OwnerID
			u.TotalValue = o.summary.TotalValue
			u.LastUpdated = o.summary.LastUpdated
			u.History = append([]model.HistoryPoint(nil), o.summary.History...)
			s.summaries[o.summary.OwnerID] = u
		}
	}
	return nil
}

func (s *MemoryStore) AddPosition(_ context.Context, p model.Position) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.DocID == "" {
		p.DocID = uuid.NewString()
	}
	s.positions[p.DocID] = p
	return p.DocID, nil
}

func (s *MemoryStore) AddTransaction(_ context.Context, t model.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.DocID == "" {
		t.DocID = uuid.NewString()
	}
	s.txs[t.DocID] = t
	return t.DocID, nil
}

func (s *MemoryStore) PutWatchlist(_ context.Context, w model.Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchlists[w.OwnerID] = w
	return nil
}

// SetSubscriptionTier mirrors the billing webhook's write path.
func (s *MemoryStore) SetSubscriptionTier(_ context.Context, ownerID, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.summaries[ownerID]
	u.OwnerID = ownerID
	u.SubscriptionTier = tier
	s.summaries[ownerID] = u
	return nil
}

// LatestPrice exposes the price snapshot for assertions.
func (s *MemoryStore) LatestPrice(symbol string) (model.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.prices[symbol]
	return q, ok
}

// Position exposes one position document for assertions.
func (s *MemoryStore) Position(docID string) (model.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[docID]
	return p, ok
}

// Transaction exposes one transaction document for assertions.
func (s *MemoryStore) Transaction(docID string) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[docID]
	return t, ok
}

// Summary exposes one user summary for assertions.
func (s *MemoryStore) Summary(ownerID string) (model.UserSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.summaries[ownerID]
	return u, ok
}

func (s *MemoryStore) Close() error { return nil }
