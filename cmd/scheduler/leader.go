package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// lockConn is the session holding the advisory lock. *pgxpool.Conn satisfies it.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// elector tracks leadership through a session-scoped pg advisory lock. The
// session is dropped on any error and a fresh one is acquired on the next
// check; the server frees the lock when the old session dies.
type elector struct {
	id      int64
	acquire func(ctx context.Context) (lockConn, error)
	conn    lockConn
}

func (e *elector) IsLeader(ctx context.Context) (bool, error) {
	if e.conn == nil {
		c, err := e.acquire(ctx)
		if err != nil {
			return false, errors.Wrap(err, "acquire leader connection")
		}
		e.conn = c
	}

	var leader bool
	if err := e.conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", e.id).Scan(&leader); err != nil {
		e.Close()
		return false, errors.Wrap(err, "try advisory lock")
	}
	return leader, nil
}

func (e *elector) Close() {
	if e.conn != nil {
		e.conn.Release()
		e.conn = nil
	}
}
