// Package postgres implements the ledger store contract on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "github.com/lib/pq" // driver registration

	"github.com/stockledger/stockledger/internal/apperr"
	"github.com/stockledger/stockledger/internal/ledger"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns reasonable pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id                TEXT PRIMARY KEY,
	stock_name        TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	date_buy          TIMESTAMPTZ NOT NULL,
	price_buy         DOUBLE PRECISION NOT NULL CHECK (price_buy > 0),
	target_percent    DOUBLE PRECISION NOT NULL CHECK (target_percent > 0),
	stop_loss_percent DOUBLE PRECISION NOT NULL CHECK (stop_loss_percent > 0),
	reason            TEXT NOT NULL,
	confidence        TEXT NOT NULL CHECK (confidence IN ('Low', 'Medium', 'High')),
	chart_link        TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	author            TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL CHECK (status IN ('Active', 'Closed')),
	date_sell         TIMESTAMPTZ,
	price_sell        DOUBLE PRECISION CHECK (price_sell > 0),
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_created_at ON ledger_entries (created_at DESC);
`

// Store is the PostgreSQL-backed ledger store.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Connect opens the pool, verifies connectivity, and bootstraps the schema.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return NewStore(db, cfg.QueryTimeout), nil
}

// NewStore wraps an existing connection. Used by tests with sqlmock.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const entryColumns = `id, stock_name, symbol, date_buy, price_buy, target_percent,
	stop_loss_percent, reason, confidence, chart_link, source, author, status,
	date_sell, price_sell, created_at, updated_at`

// Create inserts a new entry and returns the store-assigned id.
func (s *Store) Create(ctx context.Context, e *ledger.Entry) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id := uuid.NewString()
	query := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.db.ExecContext(ctx, query,
		id, e.StockName, e.Symbol, e.DateBuy, e.PriceBuy, e.TargetPercent,
		e.StopLossPercent, e.Reason, e.Confidence, e.ChartLink, e.Source,
		e.Author, e.Status, e.DateSell, e.PriceSell, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return "", classifyPG(err, "failed to create entry")
	}
	return id, nil
}

// ReadAll returns every entry ordered newest-first.
func (s *Store) ReadAll(ctx context.Context) ([]ledger.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + entryColumns + ` FROM ledger_entries ORDER BY created_at DESC`

	var entries []ledger.Entry
	if err := s.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, classifyPG(err, "failed to read entries")
	}
	return entries, nil
}

// Get returns a single entry by id.
func (s *Store) Get(ctx context.Context, id string) (*ledger.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`

	var e ledger.Entry
	if err := s.db.GetContext(ctx, &e, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, apperr.CodeEntryNotFound, "entry not found")
		}
		return nil, classifyPG(err, "failed to get entry")
	}
	return &e, nil
}

// Update applies the non-nil fields of the patch.
func (s *Store) Update(ctx context.Context, id string, p ledger.Patch) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	set := make([]string, 0, 12)
	args := make([]interface{}, 0, 13)
	add := func(col string, val interface{}) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.StockName != nil {
		add("stock_name", *p.StockName)
	}
	if p.Symbol != nil {
		add("symbol", *p.Symbol)
	}
	if p.DateBuy != nil {
		add("date_buy", *p.DateBuy)
	}
	if p.PriceBuy != nil {
		add("price_buy", *p.PriceBuy)
	}
	if p.TargetPercent != nil {
		add("target_percent", *p.TargetPercent)
	}
	if p.StopLossPercent != nil {
		add("stop_loss_percent", *p.StopLossPercent)
	}
	if p.Reason != nil {
		add("reason", *p.Reason)
	}
	if p.Confidence != nil {
		add("confidence", *p.Confidence)
	}
	if p.ChartLink != nil {
		add("chart_link", *p.ChartLink)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.DateSell != nil {
		add("date_sell", *p.DateSell)
	}
	if p.PriceSell != nil {
		add("price_sell", *p.PriceSell)
	}
	if !p.UpdatedAt.IsZero() {
		add("updated_at", p.UpdatedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE ledger_entries SET %s WHERE id = $%d",
		strings.Join(set, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classifyPG(err, "failed to update entry")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.KindNotFound, apperr.CodeEntryNotFound, "entry not found")
	}
	return nil
}

// Delete removes an entry by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = $1`, id)
	if err != nil {
		return classifyPG(err, "failed to delete entry")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.KindNotFound, apperr.CodeEntryNotFound, "entry not found")
	}
	return nil
}

// classifyPG maps a database error into the application error taxonomy so
// the retry policy and handlers can act on the kind alone.
func classifyPG(err error, msg string) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch {
		case pqErr.Code == "23505":
			return apperr.Wrap(apperr.KindAlreadyExists, apperr.CodeDuplicateEntry, "a matching entry already exists", err)
		case pqErr.Code == "23514" || pqErr.Code == "23502":
			return apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidField, "the store rejected the record", err)
		case pqErr.Code == "42501":
			return apperr.Wrap(apperr.KindPermission, apperr.CodePermissionDenied, "permission denied by the store", err)
		case pqErr.Code == "40001" || pqErr.Code == "55P03":
			return apperr.Wrap(apperr.KindFailedPrecondition, apperr.CodeStoreUnavailable, "store contention, try again", err)
		case pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57":
			return apperr.Wrap(apperr.KindTransient, apperr.CodeStoreUnavailable, "store unavailable", err)
		}
	}
	return apperr.Classify(fmt.Errorf("%s: %w", msg, err))
}
