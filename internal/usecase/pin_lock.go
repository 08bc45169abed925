package usecase

import (
	"context"
	"sync"
)

// PinLocker serializes settlement on a pin. The lock is held from the
// ownership check until the pin has moved, so a second accept for the same
// pin observes the new owner.
type PinLocker interface {
	LockPin(ctx context.Context, pinID string) (unlock func(), err error)
}

// LocalPinLocker is a PinLocker for a single process.
type LocalPinLocker struct {
	mu    sync.Mutex
	locks map[string]*pinLock
}

type pinLock struct {
	slot chan struct{}
	refs int
}

func NewLocalPinLocker() *LocalPinLocker {
	return &LocalPinLocker{locks: make(map[string]*pinLock)}
}

// LockPin blocks until the pin is free or ctx is done.
func (l *LocalPinLocker) LockPin(ctx context.Context, pinID string) (func(), error) {
	l.mu.Lock()
	pl, ok := l.locks[pinID]
	if !ok {
		pl = &pinLock{slot: make(chan struct{}, 1)}
		l.locks[pinID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(pinID, pl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-pl.slot
			l.release(pinID, pl)
		})
	}, nil
}

func (l *LocalPinLocker) release(pinID string, pl *pinLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, pinID)
	}
}
