package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// TxManager runs a function inside a single database transaction. The
// transaction travels through the context so that repositories joined into
// the same unit of work never have to be handed a *sqlx.Tx explicitly.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// txState binds the open transaction to the side effects that must wait for
// it. Hooks registered through OnCommit run only after a successful commit.
type txState struct {
	tx    *sqlx.Tx
	after []func()
}

type SQLTxManager struct {
	DB *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *SQLTxManager {
	return &SQLTxManager{DB: db}
}

func (m *SQLTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the transaction already in flight.
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	state := &txState{tx: tx}
	if err := fn(context.WithValue(ctx, txKey{}, state)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, hook := range state.after {
		hook()
	}
	return nil
}

func stateFrom(ctx context.Context) *txState {
	s, _ := ctx.Value(txKey{}).(*txState)
	return s
}

// OnCommit defers fn until the transaction bound to ctx commits; after a
// rollback it never runs. Outside a transaction fn runs immediately.
func OnCommit(ctx context.Context, fn func()) {
	if s := stateFrom(ctx); s != nil {
		s.after = append(s.after, fn)
		return
	}
	fn()
}

// Queryer returns the transaction bound to ctx, or db when no transaction is
// open. Repositories route every statement through this so reads and writes
// issued during a state transition share one transaction and its row locks.
func Queryer(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if s := stateFrom(ctx); s != nil {
		return s.tx
	}
	return db
}
