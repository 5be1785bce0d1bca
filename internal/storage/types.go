package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrClosed        = errors.New("storage closed")
)

// Config configures the ledger backend.
type Config struct {
	Driver      string
	Path        string        // sqlite, file
	DSN         string        // redis URL, postgres DSN
	KeyPrefix   string        // redis only; default "newsbot:"
	BusyTimeout time.Duration // sqlite only; 0 means driver default
}

// Store maps a user id to the time of its last successful digest request.
//
// Implementations must be safe for concurrent use. A later PutLastRequest for
// the same user replaces the earlier one.
type Store interface {
	LastRequest(ctx context.Context, userID string) (at time.Time, ok bool, err error)
	PutLastRequest(ctx context.Context, userID string, at time.Time) error
	Close() error
}

// timeLayout is the on-disk timestamp format shared by the text backends.
const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }
