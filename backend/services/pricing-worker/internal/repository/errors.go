package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// SinkErrorKind classifies a failed insert.
type SinkErrorKind int

const (
	// SinkConnection means the store could not be reached or the connection dropped.
	SinkConnection SinkErrorKind = iota + 1
	// SinkConstraint covers uniqueness and schema violations; retrying cannot help.
	SinkConstraint
	// SinkOther is anything else the store reported.
	SinkOther
)

func (k SinkErrorKind) String() string {
	switch k {
	case SinkConnection:
		return "connection"
	case SinkConstraint:
		return "constraint"
	case SinkOther:
		return "other"
	default:
		return "unknown"
	}
}

// Retryable reports whether another insert attempt may succeed.
func (k SinkErrorKind) Retryable() bool {
	return k != SinkConstraint
}

// SinkError wraps a store failure with its classification.
type SinkError struct {
	Kind SinkErrorKind
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("persist session (%s): %v", e.Kind, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// classify maps pgx errors onto sink error kinds.
func classify(err error) *SinkError {
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := ""
		if len(pgErr.Code) >= 2 {
			class = pgErr.Code[:2]
		}
		switch class {
		case "08", "57":
			// connection exception, operator intervention (shutdown, admin cancel)
			return &SinkError{Kind: SinkConnection, Err: err}
		case "22", "23", "42":
			// data exception, integrity constraint violation, syntax / undefined object
			return &SinkError{Kind: SinkConstraint, Err: err}
		default:
			return &SinkError{Kind: SinkOther, Err: err}
		}
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err):
		return &SinkError{Kind: SinkConnection, Err: err}
	}
	return &SinkError{Kind: SinkOther, Err: err}
}
