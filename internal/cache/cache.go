// Package cache keeps short-lived copies of owner records so the alert
// worker does not hit the store for every message.
package cache

import (
	"context"
	"log/slog"
	"time"

	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
	applog "budgetledger/internal/log"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps expired entries out of registered caches.
type Janitor struct {
	caches []Cleaner
	stop   chan struct{}
	done   chan struct{}
}

func NewJanitor(caches ...Cleaner) *Janitor {
	return &Janitor{caches: caches, stop: make(chan struct{}), done: make(chan struct{})}
}

func (j *Janitor) Start(interval time.Duration) {
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleaned := 0
				for _, c := range j.caches {
					cleaned += c.CleanExpired()
				}
				if cleaned > 0 {
					slog.Debug("Expired cache entries removed",
						applog.FieldComponent, applog.ComponentCache,
						"count", cleaned)
				}
			case <-j.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop. It must be called at most once, after Start.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}

// OwnerReader serves owner lookups from a cache, falling through to the
// wrapped reader on a miss. Not-found results are never cached.
type OwnerReader struct {
	next  ledger.OwnerReader
	cache Cache[core.Owner]
}

var _ ledger.OwnerReader = (*OwnerReader)(nil)

func NewOwnerReader(next ledger.OwnerReader, c Cache[core.Owner]) *OwnerReader {
	return &OwnerReader{next: next, cache: c}
}

func (r *OwnerReader) GetOwner(ctx context.Context, id string) (core.Owner, error) {
	if o, ok := r.cache.Get(id); ok {
		return o, nil
	}
	o, err := r.next.GetOwner(ctx, id)
	if err != nil {
		return core.Owner{}, err
	}
	r.cache.Set(id, o)
	return o, nil
}
