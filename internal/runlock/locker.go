// Package runlock provides leases that keep a single billing run in flight per key.
package runlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrHeld is returned by Acquire when another holder owns the lease.
	ErrHeld = errors.New("runlock: lease is held")
	// ErrLost is returned by Refresh once the lease expired and was taken over.
	ErrLost = errors.New("runlock: lease lost")
)

type Locker interface {
	// Acquire takes the lease for key or fails with ErrHeld without waiting.
	Acquire(ctx context.Context, key string) (Lease, error)
}

type Lease interface {
	Key() string
	// TTL is how long the lease survives without a refresh. Zero means it never expires.
	TTL() time.Duration
	// Refresh pushes the expiry TTL into the future, or fails with ErrLost.
	Refresh(ctx context.Context) error
	// Release gives the lease back. Releasing a lease that was taken over is a no-op.
	Release(ctx context.Context) error
}

// Hold refreshes lease every TTL/3 until stop is called. The returned context
// is cancelled with cause ErrLost when the lease is lost, or when refreshes keep
// failing until the lease may have expired.
func Hold(ctx context.Context, lease Lease) (context.Context, func()) {
	holdCtx, cancel := context.WithCancelCause(ctx)
	ttl := lease.TTL()
	if ttl <= 0 {
		return holdCtx, func() { cancel(nil) }
	}

	every := ttl / 3
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		lastOK := time.Now()
		for {
			select {
			case <-done:
				return
			case <-holdCtx.Done():
				return
			case <-ticker.C:
			}

			refreshCtx, cancelRefresh := context.WithTimeout(holdCtx, every)
			err := lease.Refresh(refreshCtx)
			cancelRefresh()
			switch {
			case err == nil:
				lastOK = time.Now()
			case errors.Is(err, ErrLost):
				cancel(err)
				return
			case time.Since(lastOK)+every >= ttl:
				cancel(errors.Join(ErrLost, err))
				return
			}
		}
	}()

	return holdCtx, func() {
		close(done)
		<-stopped
		cancel(nil)
	}
}

func newHolder() string {
	return uuid.NewString()
}
