package ledger

import "sync"

// lockTable provides per-request mutual exclusion. Operations against
// different request IDs proceed in parallel; contribute, settle and
// cancel on the same ID serialize. Entries are reference-counted so the
// table does not grow with request history.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key, creating the entry on first use.
func (t *lockTable) lock(key string) {
	t.mu.Lock()
	e, ok := t.locks[key]
	if !ok {
		e = &lockEntry{}
		t.locks[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
}

// unlock releases the mutex for key and drops the entry once unused.
func (t *lockTable) unlock(key string) {
	t.mu.Lock()
	e := t.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()

	e.mu.Unlock()
}
