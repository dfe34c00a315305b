package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRecursiveSharedMutexSingleOwner(t *testing.T) {
	m := New()
	const owner Owner = 1

	m.Lock(owner)
	m.Unlock(owner)

	m.RLock(owner)
	m.RUnlock(owner)

	m.Lock(owner)
	m.Lock(owner) // recursive exclusive
	m.Unlock(owner)
	m.Unlock(owner)

	m.RLock(owner)
	m.RLock(owner) // recursive shared
	m.RUnlock(owner)
	m.RUnlock(owner)

	m.Lock(owner)
	m.RLock(owner) // exclusive holder may also take shared without blocking
	m.RUnlock(owner)
	m.Unlock(owner)
}

func TestRecursiveSharedMutexMultiOwner(t *testing.T) {
	const nbOwners = 10
	m := New()
	var nbUnique, nbShared atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < nbOwners; i++ {
		owner := Owner(i + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()

			m.Lock(owner)
			m.RLock(owner)
			if nbUnique.Load() != 0 || nbShared.Load() != 0 {
				t.Errorf("exclusive section observed concurrent holder")
			}
			nbUnique.Add(1)
			time.Sleep(2 * time.Millisecond)
			nbUnique.Add(-1)
			m.RUnlock(owner)
			m.Unlock(owner)

			m.RLock(owner)
			m.RLock(owner)
			if nbUnique.Load() != 0 {
				t.Errorf("shared section observed an exclusive holder")
			}
			nbShared.Add(1)
			time.Sleep(5 * time.Millisecond)
			if nbShared.Load() > nbOwners {
				t.Errorf("shared count exceeded owner count")
			}
			nbShared.Add(-1)
			m.RUnlock(owner)
			m.RUnlock(owner)
		}()
	}

	wg.Wait()
}

func TestRecursiveSharedMutexUnlockWithoutLockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unbalanced Unlock")
		}
	}()
	m := New()
	m.Unlock(1)
}
