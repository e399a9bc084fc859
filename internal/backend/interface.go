// Package backend selects and opens the ledger store named by DATA_BACKEND.
package backend

import (
	"context"

	"budgetledger/internal/ledger"
)

// Backend is everything the binaries need from a store: the ledger ports,
// owner registration for operator tooling and a health check for /readyz.
type Backend interface {
	ledger.Store
	ledger.OwnerWriter
	Ping(ctx context.Context) error
}

// Opened is an open backend and the func that releases it. Close is never
// nil.
type Opened struct {
	Backend Backend
	Close   func() error
}

// Opener opens a backend for a configuration.
type Opener interface {
	Open(ctx context.Context, cfg Config) (*Opened, error)
}

// Kind names a storage engine.
type Kind string

const (
	Memory   Kind = "memory"
	SQLite   Kind = "sqlite"
	Postgres Kind = "postgres"
)

// Kinds lists the supported engines in documentation order.
var Kinds = []Kind{Memory, SQLite, Postgres}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
