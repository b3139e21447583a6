package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/stockledger/internal/apperr"
	"github.com/stockledger/stockledger/internal/ledger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func sampleEntry() *ledger.Entry {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	return &ledger.Entry{
		StockName:       "Reliance",
		Symbol:          "RELIANCE.NS",
		DateBuy:         now,
		PriceBuy:        100,
		TargetPercent:   10,
		StopLossPercent: 5,
		Reason:          "breakout",
		Confidence:      ledger.ConfidenceHigh,
		Status:          ledger.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Create(context.Background(), sampleEntry())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.Create(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Equal(t, apperr.KindAlreadyExists, apperr.KindOf(err))
}

func TestCreateMapsConnectionFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WillReturnError(&pq.Error{Code: "08006"})

	_, err := store.Create(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestReadAllOrdersNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"id", "stock_name", "symbol", "date_buy", "price_buy",
		"target_percent", "stop_loss_percent", "reason", "confidence",
		"chart_link", "source", "author", "status", "date_sell", "price_sell",
		"created_at", "updated_at"}
	now := time.Now()
	rows := sqlmock.NewRows(cols).
		AddRow("id-2", "TCS", "TCS.NS", now, 4100.0, 8.0, 4.0, "dip buy",
			"Medium", "", "", "", "Active", nil, nil, now, now).
		AddRow("id-1", "Reliance", "RELIANCE.NS", now, 100.0, 10.0, 5.0, "breakout",
			"High", "", "", "", "Active", nil, nil, now.Add(-time.Hour), now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT .* FROM ledger_entries ORDER BY created_at DESC`).
		WillReturnRows(rows)

	entries, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-2", entries[0].ID)
	assert.Equal(t, "id-1", entries[1].ID)
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM ledger_entries WHERE id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateBuildsPartialSet(t *testing.T) {
	store, mock := newMockStore(t)

	reason := "revised"
	target := 15.0
	updated := time.Now()

	mock.ExpectExec(`UPDATE ledger_entries SET reason = \$1, target_percent = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(reason, target, updated, "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Update(context.Background(), "id-1", ledger.Patch{
		Reason:        &reason,
		TargetPercent: &target,
		UpdatedAt:     updated,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	reason := "revised"
	mock.ExpectExec(`UPDATE ledger_entries SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), "missing", ledger.Patch{Reason: &reason, UpdatedAt: time.Now()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateEmptyPatchIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Update(context.Background(), "id-1", ledger.Patch{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM ledger_entries WHERE id`).
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "id-1"))

	mock.ExpectExec(`DELETE FROM ledger_entries WHERE id`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateMapsContentionToFailedPrecondition(t *testing.T) {
	store, mock := newMockStore(t)

	reason := "revised"
	mock.ExpectExec(`UPDATE ledger_entries SET`).
		WillReturnError(&pq.Error{Code: "40001"})

	err := store.Update(context.Background(), "id-1", ledger.Patch{Reason: &reason, UpdatedAt: time.Now()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))
}
