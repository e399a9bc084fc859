// Package postgres stores the ledger in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
	applog "budgetledger/internal/log"
)

var (
	_ ledger.Store       = (*Store)(nil)
	_ ledger.OwnerWriter = (*Store)(nil)
)

type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// Connect opens a pool for url and pings it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 2 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) CreateOwner(ctx context.Context, name, email string) (core.Owner, error) {
	if strings.TrimSpace(name) == "" {
		return core.Owner{}, &core.ValidationError{Fields: []string{"name"}}
	}
	o := core.Owner{ID: uuid.NewString(), Name: name, Email: email, TransactionIDs: []string{}}
	_, err := s.db.Exec(ctx,
		`INSERT INTO owners(id, name, email, created_at) VALUES($1, $2, $3, $4)`,
		o.ID, o.Name, o.Email, s.now().UTC())
	if err != nil {
		return core.Owner{}, fmt.Errorf("create owner: %w", err)
	}
	return o, nil
}

func (s *Store) GetOwner(ctx context.Context, id string) (core.Owner, error) {
	var o core.Owner
	err := s.db.QueryRow(ctx, `SELECT id, name, email FROM owners WHERE id=$1`, id).
		Scan(&o.ID, &o.Name, &o.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Owner{}, core.OwnerNotFound(id)
	}
	if err != nil {
		return core.Owner{}, fmt.Errorf("get owner: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT transaction_id FROM owner_transactions WHERE owner_id=$1 ORDER BY position`, id)
	if err != nil {
		return core.Owner{}, fmt.Errorf("get owner index: %w", err)
	}
	o.TransactionIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return core.Owner{}, fmt.Errorf("scan owner index: %w", err)
	}
	return o, nil
}

func (s *Store) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := s.now().UTC()
	tx.ID = uuid.NewString()
	tx.OccurredAt = core.DateOf(tx.OccurredAt)
	tx.CreatedAt = now
	tx.UpdatedAt = now

	err := pgx.BeginFunc(ctx, s.db, func(dbtx pgx.Tx) error {
		// Locking the owner row serialises index positions per owner.
		if err := lockOwner(ctx, dbtx, tx.OwnerID); err != nil {
			return err
		}
		_, err := dbtx.Exec(ctx,
			`INSERT INTO transactions(id, owner_id, title, description, amount, category, kind, occurred_on, created_at, updated_at)
			 VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			tx.ID, tx.OwnerID, tx.Title, tx.Description, tx.Amount.String(), tx.Category,
			string(tx.Kind), tx.OccurredAt, tx.CreatedAt, tx.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		_, err = dbtx.Exec(ctx,
			`INSERT INTO owner_transactions(owner_id, transaction_id, position)
			 SELECT $1, $2, COALESCE(MAX(position), 0) + 1 FROM owner_transactions WHERE owner_id=$1`,
			tx.OwnerID, tx.ID)
		if err != nil {
			return fmt.Errorf("append owner index: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction saved to Postgres",
		applog.FieldComponent, applog.ComponentStorage,
		"transaction_id", tx.ID,
		"owner_id", tx.OwnerID,
		"category", tx.Category,
		"amount", tx.Amount.String())
	return tx, nil
}

const selectTransaction = `SELECT id, owner_id, title, description, amount::text, category, kind, occurred_on, created_at, updated_at FROM transactions`

func (s *Store) FindByID(ctx context.Context, id string) (core.Transaction, error) {
	return findByID(ctx, s.db, id)
}

func (s *Store) UpdateByID(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var updated core.Transaction
	err := pgx.BeginFunc(ctx, s.db, func(dbtx pgx.Tx) error {
		tx, err := findByID(ctx, dbtx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		updated = patch.Apply(tx)
		updated.UpdatedAt = s.now().UTC()
		_, err = dbtx.Exec(ctx,
			`UPDATE transactions SET title=$1, description=$2, amount=$3, category=$4, kind=$5, occurred_on=$6, updated_at=$7
			 WHERE id=$8`,
			updated.Title, updated.Description, updated.Amount.String(), updated.Category,
			string(updated.Kind), updated.OccurredAt, updated.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return updated, nil
}

func (s *Store) DeleteByID(ctx context.Context, ownerID, id string) error {
	return pgx.BeginFunc(ctx, s.db, func(dbtx pgx.Tx) error {
		if err := lockOwner(ctx, dbtx, ownerID); err != nil {
			return err
		}
		tag, err := dbtx.Exec(ctx,
			`DELETE FROM owner_transactions WHERE owner_id=$1 AND transaction_id=$2`, ownerID, id)
		if err != nil {
			return fmt.Errorf("remove owner index: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.TransactionNotFound(id)
		}
		if _, err := dbtx.Exec(ctx, `DELETE FROM transactions WHERE id=$1 AND owner_id=$2`, id, ownerID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string, filter core.ListFilter) ([]core.Transaction, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM owners WHERE id=$1)`, ownerID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check owner: %w", err)
	}
	if !exists {
		return nil, core.OwnerNotFound(ownerID)
	}

	query := selectTransaction + ` WHERE owner_id=$1`
	args := []any{ownerID}
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+clause, len(args))
	}
	if filter.Kind != "" {
		add("kind=$%d", string(filter.Kind))
	}
	if rng := filter.Range(s.now()); !rng.IsOpen() {
		if !rng.After.IsZero() {
			add("occurred_on > $%d::date", core.DateOf(rng.After))
		}
		if !rng.From.IsZero() {
			add("occurred_on >= $%d", rng.From)
		}
		if !rng.To.IsZero() {
			add("occurred_on <= $%d", rng.To)
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	out := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) MonthToDateSum(ctx context.Context, ownerID, category string, kind core.Kind, asOf time.Time) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM transactions
		 WHERE owner_id=$1 AND category=$2 AND kind=$3 AND occurred_on BETWEEN $4 AND $5`,
		ownerID, category, string(kind), core.MonthStart(asOf), core.DateOf(asOf)).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("month to date sum: %w", err)
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse sum %q: %w", raw, err)
	}
	return sum, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lockOwner(ctx context.Context, q querier, ownerID string) error {
	var id string
	err := q.QueryRow(ctx, `SELECT id FROM owners WHERE id=$1 FOR UPDATE`, ownerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.OwnerNotFound(ownerID)
	}
	if err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

func findByID(ctx context.Context, q querier, id string, suffix ...string) (core.Transaction, error) {
	query := selectTransaction + ` WHERE id=$1`
	if len(suffix) > 0 {
		query += " " + strings.Join(suffix, " ")
	}
	tx, err := scanTransaction(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.TransactionNotFound(id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx       core.Transaction
		amt      string
		kind     string
		occurred time.Time
	)
	if err := row.Scan(&tx.ID, &tx.OwnerID, &tx.Title, &tx.Description, &amt, &tx.Category,
		&kind, &occurred, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return core.Transaction{}, err
	}
	dec, err := decimal.NewFromString(amt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	tx.Amount = dec
	tx.Kind = core.Kind(kind)
	tx.OccurredAt = core.DateOf(occurred)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}
