// Package transaction carries database transactions through a context so the
// query layer can run statements on them without explicit plumbing
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrNestedTransactionNotSupported is returned when nesting without an open transaction
	ErrNestedTransactionNotSupported = errors.New("nested transactions require an existing transaction")
	// ErrAlreadyFinished is returned when committing a finished transaction
	ErrAlreadyFinished = errors.New("transaction already finished")
)

// savepointCounter provides unique savepoint IDs across all transactions
var savepointCounter atomic.Uint64

// Transaction represents a database transaction with support for nesting
type Transaction struct {
	tx            *sql.Tx
	level         int // 0 = top-level, 1+ = savepoint
	savepointName string
	committed     atomic.Bool
	rolledBack    atomic.Bool
}

// Manager manages database transactions
type Manager struct {
	db *sql.DB
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Begin starts a new top-level transaction
func (m *Manager) Begin(ctx context.Context, opts *sql.TxOptions) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx}, nil
}

// WithTransaction executes fn within a transaction stored in the context it
// receives. When ctx already carries a transaction a savepoint is used.
// Commits on success, rolls back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		tx  *Transaction
		err error
	)
	if parent, ok := FromContext(ctx); ok {
		tx, err = parent.BeginNested(ctx)
	} else {
		tx, err = m.Begin(ctx, nil)
	}
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p) // re-throw after rollback
		}
	}()

	if err := fn(WithContext(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Level returns the nesting level of the transaction
func (t *Transaction) Level() int {
	return t.level
}

// Commit commits the transaction or releases its savepoint
func (t *Transaction) Commit(ctx context.Context) error {
	if t.committed.Load() || t.rolledBack.Load() {
		return ErrAlreadyFinished
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", t.savepointName)); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		t.committed.Store(true)
		return nil
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction or to its savepoint
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.committed.Load() {
		return ErrAlreadyFinished
	}
	if t.rolledBack.Load() {
		return nil
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", t.savepointName)); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		t.rolledBack.Store(true)
		return nil
	}

	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	t.rolledBack.Store(true)
	return nil
}

// BeginNested creates a nested transaction using a savepoint
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	if t.tx == nil {
		return nil, ErrNestedTransactionNotSupported
	}

	savepointName := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", savepointName)); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	return &Transaction{
		tx:            t.tx,
		level:         t.level + 1,
		savepointName: savepointName,
	}, nil
}
