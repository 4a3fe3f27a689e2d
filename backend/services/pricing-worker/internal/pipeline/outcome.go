package pipeline

import (
	"fmt"
	"strings"
)

// Outcome is the state a message ends in (or passes through, for Retrying).
type Outcome int

const (
	// Delivered means a session row was persisted.
	Delivered Outcome = iota + 1
	// Retrying is reported while a failed insert waits for its next attempt.
	Retrying
	// DeadLettered means the message failed and was preserved in the dead-letter store.
	DeadLettered
	// Dropped means the message failed and could not be preserved.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Retrying:
		return "retrying"
	case DeadLettered:
		return "dead_lettered"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Pipeline stages used in logs, metrics and dead-letter entries.
const (
	StageDecode  = "decode"
	StageEnrich  = "enrich"
	StagePersist = "persist"
)

// CommitMode decides when a message's stream offset is committed.
type CommitMode string

const (
	// AtMostOnce commits right after receipt; failures after that lose the message.
	// This is the default.
	AtMostOnce CommitMode = "at-most-once"
	// AtLeastOnce commits once the message reached a final outcome; a crash before
	// that redelivers it.
	AtLeastOnce CommitMode = "at-least-once"
)

// ParseCommitMode accepts the config spelling of a commit mode. Empty means AtMostOnce.
func ParseCommitMode(raw string) (CommitMode, error) {
	switch CommitMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AtMostOnce:
		return AtMostOnce, nil
	case AtLeastOnce:
		return AtLeastOnce, nil
	default:
		return "", fmt.Errorf("pipeline: unknown commit mode %q", raw)
	}
}
