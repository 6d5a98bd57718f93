package memlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
)

// TableLocker is a single-process lock table for tests and local runs.
type TableLocker struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[uuid.UUID]application.Lease
}

func New(now func() time.Time) *TableLocker {
	if now == nil {
		now = time.Now
	}
	return &TableLocker{now: now, leases: map[uuid.UUID]application.Lease{}}
}

func (l *TableLocker) Acquire(_ context.Context, tableID uuid.UUID, holder string, ttl time.Duration) (application.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.live(tableID, now); ok && cur.Holder != holder {
		return application.Lease{}, &domain.LockedError{TableID: tableID, Holder: cur.Holder, ExpiresAt: cur.ExpiresAt}
	}
	lease := application.Lease{TableID: tableID, Holder: holder, ExpiresAt: now.Add(ttl)}
	l.leases[tableID] = lease
	return lease, nil
}

func (l *TableLocker) Release(_ context.Context, tableID uuid.UUID, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[tableID]; ok && cur.Holder == holder {
		delete(l.leases, tableID)
	}
	return nil
}

func (l *TableLocker) Current(_ context.Context, tableID uuid.UUID) (application.Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.live(tableID, l.now())
	return lease, ok, nil
}

func (l *TableLocker) live(tableID uuid.UUID, now time.Time) (application.Lease, bool) {
	lease, ok := l.leases[tableID]
	if !ok {
		return application.Lease{}, false
	}
	if !now.Before(lease.ExpiresAt) {
		delete(l.leases, tableID)
		return application.Lease{}, false
	}
	return lease, true
}
