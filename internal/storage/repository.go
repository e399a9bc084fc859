package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
	applog "budgetledger/internal/log"

	_ "modernc.org/sqlite"
)

var (
	_ ledger.Store       = (*SQLiteRepository)(nil)
	_ ledger.OwnerWriter = (*SQLiteRepository)(nil)
)

// Writers take the database lock up front so two concurrent inserts for the
// same owner cannot interleave their index positions.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return "file:" + dbPath + sep + sqlitePragmas
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateOwner(ctx context.Context, name, email string) (core.Owner, error) {
	if strings.TrimSpace(name) == "" {
		return core.Owner{}, &core.ValidationError{Fields: []string{"name"}}
	}
	o := core.Owner{ID: uuid.NewString(), Name: name, Email: email, TransactionIDs: []string{}}
	if err := r.queries.CreateOwner(ctx, o.ID, o.Name, o.Email, r.now()); err != nil {
		return core.Owner{}, fmt.Errorf("create owner: %w", err)
	}
	slog.InfoContext(ctx, "Owner created", "owner_id", o.ID)
	return o, nil
}

func (r *SQLiteRepository) GetOwner(ctx context.Context, id string) (core.Owner, error) {
	o, err := r.queries.GetOwner(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Owner{}, core.OwnerNotFound(id)
	}
	if err != nil {
		return core.Owner{}, fmt.Errorf("get owner: %w", err)
	}
	if o.TransactionIDs, err = r.queries.OwnerTransactionIDs(ctx, id); err != nil {
		return core.Owner{}, fmt.Errorf("get owner index: %w", err)
	}
	return o, nil
}

// Insert writes the transaction row and the owner index entry in one
// database transaction.
func (r *SQLiteRepository) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	now := r.now().UTC()
	tx.ID = uuid.NewString()
	tx.OccurredAt = core.DateOf(tx.OccurredAt)
	tx.CreatedAt = now
	tx.UpdatedAt = now

	err := r.inTx(ctx, func(q *Queries) error {
		exists, err := q.OwnerExists(ctx, tx.OwnerID)
		if err != nil {
			return fmt.Errorf("check owner: %w", err)
		}
		if !exists {
			return core.OwnerNotFound(tx.OwnerID)
		}
		if err := q.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := q.AppendOwnerIndex(ctx, tx.OwnerID, tx.ID); err != nil {
			return fmt.Errorf("append owner index: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		"transaction_id", tx.ID,
		"owner_id", tx.OwnerID,
		"category", tx.Category,
		"kind", tx.Kind,
		"amount", tx.Amount.String())
	return tx, nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.TransactionNotFound(id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) UpdateByID(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var updated core.Transaction
	err := r.inTx(ctx, func(q *Queries) error {
		tx, err := q.GetTransaction(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return core.TransactionNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		updated = patch.Apply(tx)
		updated.UpdatedAt = r.now().UTC()
		if err := q.UpdateTransaction(ctx, updated); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return updated, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, ownerID, id string) error {
	return r.inTx(ctx, func(q *Queries) error {
		exists, err := q.OwnerExists(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("check owner: %w", err)
		}
		if !exists {
			return core.OwnerNotFound(ownerID)
		}
		tx, err := q.GetTransaction(ctx, id)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && tx.OwnerID != ownerID) {
			return core.TransactionNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if err := q.RemoveOwnerIndex(ctx, ownerID, id); err != nil {
			return fmt.Errorf("remove owner index: %w", err)
		}
		if err := q.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string, filter core.ListFilter) ([]core.Transaction, error) {
	exists, err := r.queries.OwnerExists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("check owner: %w", err)
	}
	if !exists {
		return nil, core.OwnerNotFound(ownerID)
	}
	txs, err := r.queries.ListTransactions(ctx, ownerID, filter.Kind, filter.Range(r.now()))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) MonthToDateSum(ctx context.Context, ownerID, category string, kind core.Kind, asOf time.Time) (decimal.Decimal, error) {
	amounts, err := r.queries.MonthAmounts(ctx, ownerID, category, kind, core.MonthStart(asOf), core.DateOf(asOf))
	if err != nil {
		return decimal.Zero, fmt.Errorf("month to date sum: %w", err)
	}
	return core.SumAmounts(amounts), nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
