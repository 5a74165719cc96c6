// Package memory provides process-local repositories. A transaction holds the per-request locks it
// acquired through FindByIDForUpdate or Create until it ends and rolls back its writes on error.
// Reads and writes outside that transaction wait for the lock, so they only observe committed state.
// Lock order is always per-request lock, then Store.mu.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errNoTx = errors.New("memory: FindByIDForUpdate called outside a transaction")

type txKey struct{}

type txState struct {
	held map[uuid.UUID]*keyLock
	undo []func()
}

// keyLock is a per-request mutex. refs counts the holder and waiters; the entry is dropped from
// Store.locks when it reaches zero.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store is the shared state behind the memory repositories.
type Store struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*requestRecord
	ledger   map[uuid.UUID][]approvalRecord
	audit    []auditRecord

	locksMu sync.Mutex
	locks   map[uuid.UUID]*keyLock

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		requests: make(map[uuid.UUID]*requestRecord),
		ledger:   make(map[uuid.UUID][]approvalRecord),
		locks:    make(map[uuid.UUID]*keyLock),
		now:      time.Now,
	}
}

func (s *Store) lock(id uuid.UUID) *keyLock {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &keyLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) unlock(id uuid.UUID, l *keyLock) {
	l.mu.Unlock()
	s.locksMu.Lock()
	l.refs--
	if l.refs == 0 && s.locks[id] == l {
		delete(s.locks, id)
	}
	s.locksMu.Unlock()
}

// acquire takes the request lock for the transaction in ctx, once per transaction.
func (s *Store) acquire(ctx context.Context, id uuid.UUID) error {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return errNoTx
	}
	if _, held := tx.held[id]; held {
		return nil
	}
	tx.held[id] = s.lock(id)
	return nil
}

// guard locks id for the duration of a single call unless the transaction in ctx already holds it.
func (s *Store) guard(ctx context.Context, id uuid.UUID) func() {
	if tx, ok := ctx.Value(txKey{}).(*txState); ok {
		if _, held := tx.held[id]; held {
			return func() {}
		}
	}
	l := s.lock(id)
	return func() { s.unlock(id, l) }
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// onRollback registers undo for the transaction in ctx. Callers hold s.mu.
func onRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*txState); ok {
		tx.undo = append(tx.undo, undo)
	}
}

type TransactionManager struct {
	store *Store
}

func NewTransactionManager(store *Store) *TransactionManager {
	return &TransactionManager{store: store}
}

func (t *TransactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	tx := &txState{held: make(map[uuid.UUID]*keyLock)}
	defer func() {
		if r := recover(); r != nil {
			t.rollback(tx)
			t.release(tx)
			panic(r)
		}
		if err != nil {
			t.rollback(tx)
		}
		t.release(tx)
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (t *TransactionManager) rollback(tx *txState) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (t *TransactionManager) release(tx *txState) {
	for id, l := range tx.held {
		t.store.unlock(id, l)
		delete(tx.held, id)
	}
}
