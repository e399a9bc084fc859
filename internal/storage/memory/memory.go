package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
)

var (
	_ ledger.Store       = (*Store)(nil)
	_ ledger.OwnerWriter = (*Store)(nil)
)

// Store keeps owners and transactions in process memory. A single mutex
// guards both, so the owner index always moves together with the
// transaction set.
type Store struct {
	mu     sync.RWMutex
	owners map[string]*core.Owner
	txs    map[string]core.Transaction
	order  []string // insertion order, used as the store's listing order
	now    func() time.Time
}

func New() *Store {
	return &Store{
		owners: make(map[string]*core.Owner),
		txs:    make(map[string]core.Transaction),
		now:    time.Now,
	}
}

// NewFromFiles seeds owners from base/seed_owners.txt, one "name,email"
// per line. Blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_owners.txt")) {
		name, email, _ := strings.Cut(line, ",")
		_, _ = s.CreateOwner(context.Background(), strings.TrimSpace(name), strings.TrimSpace(email))
	}
	return s
}

// Ping always succeeds; the store lives in process.
func (s *Store) Ping(context.Context) error { return nil }

// CreateOwner registers an owner with a generated id.
func (s *Store) CreateOwner(_ context.Context, name, email string) (core.Owner, error) {
	if strings.TrimSpace(name) == "" {
		return core.Owner{}, &core.ValidationError{Fields: []string{"name"}}
	}
	o := &core.Owner{ID: uuid.NewString(), Name: name, Email: email}
	s.mu.Lock()
	s.owners[o.ID] = o
	s.mu.Unlock()
	return copyOwner(o), nil
}

// PutOwner registers an owner under a caller chosen id. Used by tests and seeding.
func (s *Store) PutOwner(o core.Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	cp.TransactionIDs = append([]string(nil), o.TransactionIDs...)
	s.owners[o.ID] = &cp
}

func (s *Store) GetOwner(_ context.Context, id string) (core.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[id]
	if !ok {
		return core.Owner{}, core.OwnerNotFound(id)
	}
	return copyOwner(o), nil
}

func (s *Store) Insert(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.owners[tx.OwnerID]
	if !ok {
		return core.Transaction{}, core.OwnerNotFound(tx.OwnerID)
	}

	now := s.now().UTC()
	tx.ID = uuid.NewString()
	tx.OccurredAt = core.DateOf(tx.OccurredAt)
	tx.CreatedAt = now
	tx.UpdatedAt = now

	s.txs[tx.ID] = tx
	s.order = append(s.order, tx.ID)
	owner.TransactionIDs = append(owner.TransactionIDs, tx.ID)
	return tx, nil
}

func (s *Store) FindByID(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.TransactionNotFound(id)
	}
	return tx, nil
}

func (s *Store) UpdateByID(_ context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.TransactionNotFound(id)
	}
	tx = patch.Apply(tx)
	tx.UpdatedAt = s.now().UTC()
	s.txs[id] = tx
	return tx, nil
}

func (s *Store) DeleteByID(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.owners[ownerID]
	if !ok {
		return core.OwnerNotFound(ownerID)
	}
	tx, ok := s.txs[id]
	if !ok || tx.OwnerID != ownerID {
		return core.TransactionNotFound(id)
	}

	delete(s.txs, id)
	s.order = removeID(s.order, id)
	owner.TransactionIDs = removeID(owner.TransactionIDs, id)
	return nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string, filter core.ListFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.owners[ownerID]; !ok {
		return nil, core.OwnerNotFound(ownerID)
	}
	rng := filter.Range(s.now())
	out := []core.Transaction{}
	for _, id := range s.order {
		tx := s.txs[id]
		if tx.OwnerID == ownerID && filter.Matches(tx, rng) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) MonthToDateSum(_ context.Context, ownerID, category string, kind core.Kind, asOf time.Time) (decimal.Decimal, error) {
	from := core.MonthStart(asOf)
	to := core.DateOf(asOf)

	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, tx := range s.txs {
		if tx.OwnerID != ownerID || tx.Category != category || tx.Kind != kind {
			continue
		}
		if tx.OccurredAt.Before(from) || tx.OccurredAt.After(to) {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total, nil
}

func copyOwner(o *core.Owner) core.Owner {
	cp := *o
	cp.TransactionIDs = append([]string(nil), o.TransactionIDs...)
	return cp
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
