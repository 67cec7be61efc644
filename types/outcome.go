package types

// OutcomeStatus is the terminal status of one raw record after an invocation.
type OutcomeStatus int

const (
	// OutcomeWritten - every admitted entry from the record was persisted
	OutcomeWritten OutcomeStatus = iota
	// OutcomeFiltered - the record produced no admitted entries (whitelist
	// drop or control message); this is a success, not an error
	OutcomeFiltered
	// OutcomeDecodeFailed - the payload could not be decoded; not retryable
	// by default as the same bytes would fail again
	OutcomeDecodeFailed
	// OutcomeWriteFailed - a destination write for the record failed after
	// exhausting retries; retryable
	OutcomeWriteFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeWritten:
		return "written"
	case OutcomeFiltered:
		return "filtered"
	case OutcomeDecodeFailed:
		return "decode_failed"
	case OutcomeWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

// Outcome is the per-record result reported back to the caller. Outcomes are
// ordered identically to the input records of the invocation.
type Outcome struct {
	Status OutcomeStatus
	// SequenceToken identifies the originating record so the caller can
	// re-deliver just the failed subset
	SequenceToken string
	// Err carries the decode or write error for failed outcomes
	Err error
}
