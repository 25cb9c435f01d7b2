package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"portfoliopulse/internal/model"
)

// SQLiteStore backs the document collections with a SQLite database. One
// Commit is one SQL transaction, which is what gives a user's holdings
// reconciliation its all-or-none guarantee.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the UI layer can read while a refresh run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			doc_id               TEXT PRIMARY KEY,
			owner_id             TEXT NOT NULL,
			symbol               TEXT NOT NULL,
			quantity             REAL NOT NULL,
			cost_basis_per_share REAL NOT NULL DEFAULT 0,
			portfolio_id         TEXT,
			created_at           INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions(owner_id)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			doc_id           TEXT PRIMARY KEY,
			owner_id         TEXT NOT NULL,
			symbol           TEXT NOT NULL,
			type             TEXT NOT NULL,
			quantity         REAL NOT NULL,
			price_per_share  REAL NOT NULL DEFAULT 0,
			portfolio_id     TEXT,
			transaction_date INTEGER NOT NULL,
			processed_at     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_processed ON transactions(processed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_owner ON transactions(owner_id)`,

		`CREATE TABLE IF NOT EXISTS watchlists (
			owner_id TEXT PRIMARY KEY,
			symbols  TEXT NOT NULL DEFAULT '[]'
		)`,

		`CREATE TABLE IF NOT EXISTS latest_prices (
			symbol         TEXT PRIMARY KEY,
			price          REAL NOT NULL,
			change         REAL NOT NULL DEFAULT 0,
			percent_change REAL NOT NULL DEFAULT 0,
			last_updated   INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_summaries (
			owner_id          TEXT PRIMARY KEY,
			total_value       REAL NOT NULL DEFAULT 0,
			last_updated      INTEGER,
			history           TEXT NOT NULL DEFAULT '[]',
			subscription_tier TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Positions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, owner_id, symbol, quantity, cost_basis_per_share, portfolio_id, created_at FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var p model.Position
		var portfolioID sql.NullString
		var createdAt int64
		if err := rows.Scan(&p.DocID, &p.OwnerID, &p.Symbol, &p.Quantity, &p.CostBasisPerShare, &portfolioID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.PortfolioID = portfolioID.String
		p.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UnprocessedTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, owner_id, symbol, type, quantity, price_per_share, portfolio_id, transaction_date
		 FROM transactions WHERE processed_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var portfolioID sql.NullString
		var txDate int64
		if err := rows.Scan(&t.DocID, &t.OwnerID, &t.Symbol, &t.Type, &t.Quantity, &t.PricePerShare, &portfolioID, &txDate); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.PortfolioID = portfolioID.String
		t.TransactionDate = time.Unix(txDate, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Watchlists(ctx context.Context) ([]model.Watchlist, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, symbols FROM watchlists`)
	if err != nil {
		return nil, fmt.Errorf("query watchlists: %w", err)
	}
	defer rows.Close()

	var out []model.Watchlist
	for rows.Next() {
		var w model.Watchlist
		var symbols string
		if err := rows.Scan(&w.OwnerID, &symbols); err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		if err := json.Unmarshal([]byte(symbols), &w.Symbols); err != nil {
			log.Printf("[WARN] watchlist %s has malformed symbols, skipping: %v", w.OwnerID, err)
			continue
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UserSummaries(ctx context.Context) ([]model.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, total_value, last_updated, history, subscription_tier FROM user_summaries`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []model.UserSummary
	for rows.Next() {
		var u model.UserSummary
		var lastUpdated sql.NullInt64
		var history string
		if err := rows.Scan(&u.OwnerID, &u.TotalValue, &lastUpdated, &history, &u.SubscriptionTier); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if lastUpdated.Valid {
			u.LastUpdated = time.Unix(lastUpdated.Int64, 0)
		}
		if err := json.Unmarshal([]byte(history), &u.History); err != nil {
			log.Printf("[WARN] summary %s has malformed history, starting fresh: %v", u.OwnerID, err)
			u.History = nil
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Commit applies the batch inside a single SQL transaction.
func (s *SQLiteStore) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for _, o := range b.ops {
		if err := applyOp(ctx, tx, o); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, o op) error {
	switch o.kind {
	case opUpsertPosition:
		p := o.position
		// Merge semantics: created_at is supplied on insert but an existing
		// stamp survives the conflict path.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO positions (doc_id, owner_id, symbol, quantity, cost_basis_per_share, portfolio_id, created_at)
			 VALUES (?,?,?,?,?,?,?)
			 ON CONFLICT(doc_id) DO UPDATE SET
				owner_id = excluded.owner_id,
				symbol = excluded.symbol,
				quantity = excluded.quantity,
				cost_basis_per_share = excluded.cost_basis_per_share,
				portfolio_id = excluded.portfolio_id`,
			p.DocID, p.OwnerID, p.Symbol, p.Quantity, p.CostBasisPerShare, p.PortfolioID, p.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("upsert position %s: %w", p.DocID, err)
		}
	case opDeletePosition:
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE doc_id = ?`, o.docID); err != nil {
			return fmt.Errorf("delete position %s: %w", o.docID, err)
		}
	case opMarkProcessed:
		_, err := tx.ExecContext(ctx,
			`UPDATE transactions SET processed_at = ? WHERE doc_id = ?`, o.processedAt.Unix(), o.docID)
		if err != nil {
			return fmt.Errorf("mark transaction %s: %w", o.docID, err)
		}
	case opPutPrice:
		q := o.quote
		_, err := tx.ExecContext(ctx,
			`INSERT INTO latest_prices (symbol, price, change, percent_change, last_updated)
			 VALUES (?,?,?,?,?)
			 ON CONFLICT(symbol) DO UPDATE SET
				price = excluded.price,
				change = excluded.change,
				percent_change = excluded.percent_change,
				last_updated = excluded.last_updated`,
			q.Symbol, q.Price, q.Change, q.PercentChange, q.FetchedAt.Unix())
		if err != nil {
			return fmt.Errorf("put price %s: %w", q.Symbol, err)
		}
	case opMergeSummary:
		u := o.summary
		history, err := json.Marshal(u.History)
		if err != nil {
			return fmt.Errorf("encode history for %s: %w", u.OwnerID, err)
		}
		// subscription_tier is never listed here: a fresh row takes the
		// column default and an existing row keeps whatever billing wrote.
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_summaries (owner_id, total_value, last_updated, history)
			 VALUES (?,?,?,?)
			 ON CONFLICT(owner_id) DO UPDATE SET
				total_value = excluded.total_value,
				last_updated = excluded.last_updated,
				history = excluded.history`,
			u.OwnerID, u.TotalValue, u.LastUpdated.Unix(), string(history))
		if err != nil {
			return fmt.Errorf("merge summary %s: %w", u.OwnerID, err)
		}
	default:
		return fmt.Errorf("unknown batch op %d", o.kind)
	}
	return nil
}

func (s *SQLiteStore) AddPosition(ctx context.Context, p model.Position) (string, error) {
	if p.DocID == "" {
		p.DocID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (doc_id, owner_id, symbol, quantity, cost_basis_per_share, portfolio_id, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		p.DocID, p.OwnerID, p.Symbol, p.Quantity, p.CostBasisPerShare, p.PortfolioID, p.CreatedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("add position: %w", err)
	}
	return p.DocID, nil
}

func (s *SQLiteStore) AddTransaction(ctx context.Context, t model.Transaction) (string, error) {
	if t.DocID == "" {
		t.DocID = uuid.NewString()
	}
	if t.TransactionDate.IsZero() {
		t.TransactionDate = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var processedAt interface{}
	if t.ProcessedAt != nil {
		processedAt = t.ProcessedAt.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (doc_id, owner_id, symbol, type, quantity, price_per_share, portfolio_id, transaction_date, processed_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		t.DocID, t.OwnerID, t.Symbol, t.Type, t.Quantity, t.PricePerShare, t.PortfolioID, t.TransactionDate.Unix(), processedAt)
	if err != nil {
		return "", fmt.Errorf("add transaction: %w", err)
	}
	return t.DocID, nil
}

func (s *SQLiteStore) PutWatchlist(ctx context.Context, w model.Watchlist) error {
	symbols, err := json.Marshal(w.Symbols)
	if err != nil {
		return fmt.Errorf("encode watchlist: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO watchlists (owner_id, symbols) VALUES (?,?)
		 ON CONFLICT(owner_id) DO UPDATE SET symbols = excluded.symbols`,
		w.OwnerID, string(symbols))
	if err != nil {
		return fmt.Errorf("put watchlist: %w", err)
	}
	return nil
}

// SetSubscriptionTier is the billing webhook's write path. The refresh job
// never calls it.
func (s *SQLiteStore) SetSubscriptionTier(ctx context.Context, ownerID, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_summaries (owner_id, subscription_tier) VALUES (?,?)
		 ON CONFLICT(owner_id) DO UPDATE SET subscription_tier = excluded.subscription_tier`,
		ownerID, tier)
	if err != nil {
		return fmt.Errorf("set subscription tier: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
