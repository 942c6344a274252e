package bidding

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// lockRegistry hands out per-auction mutual exclusion. Locks are
// reference counted so the map does not grow with the number of
// auctions ever touched, only with the number currently contended.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*auctionLock
}

type auctionLock struct {
	sem  chan struct{}
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[uuid.UUID]*auctionLock)}
}

// Acquire blocks until the auction lock is held or ctx is done.
// The returned release function must be called exactly once.
func (r *lockRegistry) Acquire(ctx context.Context, auctionID uuid.UUID) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[auctionID]
	if !ok {
		l = &auctionLock{sem: make(chan struct{}, 1)}
		r.locks[auctionID] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			r.put(auctionID, l)
		}, nil
	case <-ctx.Done():
		r.put(auctionID, l)
		return nil, ctx.Err()
	}
}

func (r *lockRegistry) put(auctionID uuid.UUID, l *auctionLock) {
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, auctionID)
	}
	r.mu.Unlock()
}
