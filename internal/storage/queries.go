package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetledger/internal/core"
)

const dateLayout = "2006-01-02"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const createOwner = `INSERT INTO owners (id, name, email, created_at) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateOwner(ctx context.Context, id, name, email string, createdAt time.Time) error {
	_, err := q.db.ExecContext(ctx, createOwner, id, name, email, createdAt.UTC().Format(time.RFC3339Nano))
	return err
}

const getOwner = `SELECT id, name, email FROM owners WHERE id = ?`

func (q *Queries) GetOwner(ctx context.Context, id string) (core.Owner, error) {
	var o core.Owner
	err := q.db.QueryRowContext(ctx, getOwner, id).Scan(&o.ID, &o.Name, &o.Email)
	return o, err
}

const ownerExists = `SELECT EXISTS (SELECT 1 FROM owners WHERE id = ?)`

func (q *Queries) OwnerExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, ownerExists, id).Scan(&exists)
	return exists, err
}

const ownerTransactionIDs = `SELECT transaction_id FROM owner_transactions WHERE owner_id = ? ORDER BY position`

func (q *Queries) OwnerTransactionIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, ownerTransactionIDs, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const insertTransaction = `INSERT INTO transactions
    (id, owner_id, title, description, amount, category, kind, occurred_on, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		tx.ID, tx.OwnerID, tx.Title, tx.Description, tx.Amount.String(), tx.Category,
		string(tx.Kind), tx.OccurredAt.Format(dateLayout),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano), tx.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

const appendOwnerIndex = `INSERT INTO owner_transactions (owner_id, transaction_id, position)
    VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM owner_transactions WHERE owner_id = ?))`

func (q *Queries) AppendOwnerIndex(ctx context.Context, ownerID, txID string) error {
	_, err := q.db.ExecContext(ctx, appendOwnerIndex, ownerID, txID, ownerID)
	return err
}

const removeOwnerIndex = `DELETE FROM owner_transactions WHERE owner_id = ? AND transaction_id = ?`

func (q *Queries) RemoveOwnerIndex(ctx context.Context, ownerID, txID string) error {
	_, err := q.db.ExecContext(ctx, removeOwnerIndex, ownerID, txID)
	return err
}

const transactionColumns = `id, owner_id, title, description, amount, category, kind, occurred_on, created_at, updated_at`

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const updateTransaction = `UPDATE transactions
    SET title = ?, description = ?, amount = ?, category = ?, kind = ?, occurred_on = ?, updated_at = ?
    WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := q.db.ExecContext(ctx, updateTransaction,
		tx.Title, tx.Description, tx.Amount.String(), tx.Category, string(tx.Kind),
		tx.OccurredAt.Format(dateLayout), tx.UpdatedAt.UTC().Format(time.RFC3339Nano), tx.ID)
	return err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteTransaction, id)
	return err
}

const monthAmounts = `SELECT amount FROM transactions
    WHERE owner_id = ? AND category = ? AND kind = ? AND occurred_on >= ? AND occurred_on <= ?`

// MonthAmounts returns the raw amounts in the window. SQLite has no decimal
// type, so summing happens in Go.
func (q *Queries) MonthAmounts(ctx context.Context, ownerID, category string, kind core.Kind, from, to time.Time) ([]decimal.Decimal, error) {
	rows, err := q.db.QueryContext(ctx, monthAmounts, ownerID, category, string(kind), from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse stored amount %q: %w", raw, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListTransactions builds the owner listing query for a filter.
func (q *Queries) ListTransactions(ctx context.Context, ownerID string, kind core.Kind, rng core.DateRange) ([]core.Transaction, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = ?`)
	args := []interface{}{ownerID}
	if kind != "" {
		sb.WriteString(` AND kind = ?`)
		args = append(args, string(kind))
	}
	if !rng.IsOpen() {
		// occurred_on is a calendar date, so "after a timestamp" is "after its date".
		if !rng.After.IsZero() {
			sb.WriteString(` AND occurred_on > ?`)
			args = append(args, rng.After.UTC().Format(dateLayout))
		}
		if !rng.From.IsZero() {
			sb.WriteString(` AND occurred_on >= ?`)
			args = append(args, rng.From.Format(dateLayout))
		}
		if !rng.To.IsZero() {
			sb.WriteString(` AND occurred_on <= ?`)
			args = append(args, rng.To.Format(dateLayout))
		}
	}
	sb.WriteString(` ORDER BY rowid`)

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx                              core.Transaction
		amount, kind, occurred, created string
		updated                         string
	)
	if err := row.Scan(&tx.ID, &tx.OwnerID, &tx.Title, &tx.Description, &amount, &tx.Category,
		&kind, &occurred, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	tx.Kind = core.Kind(kind)
	if tx.OccurredAt, err = time.Parse(dateLayout, occurred); err != nil {
		return core.Transaction{}, fmt.Errorf("parse occurred_on: %w", err)
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at: %w", err)
	}
	if tx.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return core.Transaction{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return tx, nil
}
