package migrator_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"go.hackfix.me/mailstore/db/migrator"
)

// fakeStore is an in-memory Store that records committed statements. Statements
// executed within a Tx only become visible after Commit.
type fakeStore struct {
	mx        sync.Mutex
	version   int
	applied   []string
	execCount int
	begins    int
	failOn    string
	failErr   error
	// Errors injected into the atomic scope.
	beginErr    error
	commitErr   error
	rollbackErr error
}

var _ migrator.Store = (*fakeStore)(nil)

func newFakeStore(version int) *fakeStore {
	return &fakeStore{version: version, failErr: errors.New("boom")}
}

func (s *fakeStore) Version(context.Context) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.version, nil
}

func (s *fakeStore) Begin(context.Context) (migrator.Tx, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.begins++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &fakeTx{store: s, version: -1}, nil
}

func (s *fakeStore) Applied() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.applied...)
}

type fakeTx struct {
	store   *fakeStore
	stmts   []string
	version int
	done    bool
}

func (tx *fakeTx) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	tx.store.mx.Lock()
	defer tx.store.mx.Unlock()
	tx.store.execCount++
	if tx.store.failOn != "" && query == tx.store.failOn {
		return nil, tx.store.failErr
	}
	tx.stmts = append(tx.stmts, query)
	return fakeResult{}, nil
}

func (tx *fakeTx) SetVersion(_ context.Context, version int) error {
	tx.version = version
	return nil
}

func (tx *fakeTx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.store.mx.Lock()
	defer tx.store.mx.Unlock()
	if tx.store.commitErr != nil {
		return tx.store.commitErr
	}
	tx.store.applied = append(tx.store.applied, tx.stmts...)
	if tx.version >= 0 {
		tx.store.version = tx.version
	}
	return nil
}

func (tx *fakeTx) Rollback() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.store.mx.Lock()
	defer tx.store.mx.Unlock()
	return tx.store.rollbackErr
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 0, nil }
