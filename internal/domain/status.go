package domain

import (
	"errors"
	"fmt"
)

// ProcessingStatus is the lifecycle position of a transaction inside a run.
type ProcessingStatus int

const (
	// StatusFetched is assigned when a raw record has been read from a source.
	StatusFetched ProcessingStatus = iota
	// StatusProcessed indicates the description was cleaned and the amount normalized.
	StatusProcessed
	// StatusEmailEnriched indicates email correlation ran (with or without a match).
	StatusEmailEnriched
	// StatusCategorized indicates the classifier stage ran.
	StatusCategorized
	// StatusStored indicates the transaction was written to the graph.
	StatusStored
	// StatusExported indicates the transaction was mirrored to an external sink.
	StatusExported
	// StatusFailed is terminal: a stage failed for this item.
	StatusFailed
	// StatusCancelled is terminal: the run was cancelled before the item finished.
	StatusCancelled
)

// ErrInvalidTransition is returned when a status change would move backwards,
// stay in place, or skip a mandatory state.
var ErrInvalidTransition = errors.New("invalid status transition")

var statusNames = map[ProcessingStatus]string{
	StatusFetched:       "fetched",
	StatusProcessed:     "processed",
	StatusEmailEnriched: "email_enriched",
	StatusCategorized:   "categorized",
	StatusStored:        "stored",
	StatusExported:      "exported",
	StatusFailed:        "failed",
	StatusCancelled:     "cancelled",
}

// optional states may be skipped on the forward path.
var optional = map[ProcessingStatus]bool{
	StatusEmailEnriched: true,
	StatusExported:      true,
}

func (s ProcessingStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus converts a status name back into a ProcessingStatus.
func ParseStatus(name string) (ProcessingStatus, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("ParseStatus: unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s ProcessingStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ProcessingStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no further transition is possible.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusExported || s == StatusFailed || s == StatusCancelled
}

// Succeeded reports whether the item reached durable storage.
func (s ProcessingStatus) Succeeded() bool {
	return s == StatusStored || s == StatusExported
}

// CanTransition reports whether from -> to is a legal move.
//
// Failed and Cancelled are reachable from every non-terminal state. Forward
// moves may skip optional states only.
func CanTransition(from, to ProcessingStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	if to <= from || to > StatusExported {
		return false
	}
	for s := from + 1; s < to; s++ {
		if !optional[s] {
			return false
		}
	}
	return true
}
