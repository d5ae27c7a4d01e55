// Package store is a thin transactional abstraction over PostgreSQL:
// connection acquisition with optional autocommit, row locking via
// `FOR UPDATE`, and distinguished duplicate-key errors (§4.1 Store).
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound marks a missing row; IsNotFound treats it like sql.ErrNoRows.
var ErrNotFound = errors.New("store: record not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("store: duplicate key")

// pqDuplicateKeyCode is Postgres's SQLSTATE for unique_violation.
const pqDuplicateKeyCode = "23505"

// Store wraps a *sql.DB with the transaction discipline the engines
// build on: every multi-row mutation runs inside WithTx, which
// guarantees the transaction is committed or rolled back exactly once
// regardless of how the callback returns (§5).
type Store struct {
	DB *sql.DB
}

// New wraps an existing *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// TxFunc is the unit of work run inside a transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx acquires a connection with auto_commit=false semantics: it
// begins a transaction, runs fn, and commits on success or rolls back
// on any error (including a panic, which it re-raises after rollback).
// No database row lock taken inside fn may be held across an outbound
// RPC; callers are responsible for keeping fn free of network calls.
func (s *Store) WithTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// IsDuplicate reports whether err represents a unique-constraint
// violation, either as ErrDuplicate or a *pq.Error with SQLSTATE 23505.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqDuplicateKeyCode
	}
	return false
}

// IsNotFound reports whether err is ErrNotFound or sql.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// Querier is satisfied by both *sql.DB and *sql.Tx, letting read
// helpers run either outside or inside a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
