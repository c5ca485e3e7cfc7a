package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced by the repositories.
var (
	// ErrSlotTaken indicates a confirmed appointment already overlaps the
	// requested interval, either at the pre-check or inside the conditional
	// insert.
	ErrSlotTaken = errors.New("store: slot already taken")

	// ErrVersionConflict indicates a conversation save lost a concurrent
	// read-modify-write race.
	ErrVersionConflict = errors.New("store: conversation version conflict")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies it
// for tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}
