package clients

import "fmt"

// OracleErrorKind classifies pricing endpoint failures.
type OracleErrorKind int

const (
	// OracleTimeout means an attempt exceeded its deadline.
	OracleTimeout OracleErrorKind = iota + 1
	// OracleTransport covers connection failures and retryable server statuses.
	OracleTransport
	// OracleDecode means the endpoint answered but not with a price quote.
	OracleDecode
)

func (k OracleErrorKind) String() string {
	switch k {
	case OracleTimeout:
		return "timeout"
	case OracleTransport:
		return "transport"
	case OracleDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed.
func (k OracleErrorKind) Retryable() bool {
	return k == OracleTimeout || k == OracleTransport
}

// OracleError is returned by quote fetchers once retries are exhausted.
type OracleError struct {
	Kind     OracleErrorKind
	Attempts int
	Err      error
}

func (e *OracleError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("pricing oracle %s after %d attempts: %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("pricing oracle %s: %v", e.Kind, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}
