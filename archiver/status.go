package archiver

import (
	"log/slog"

	"github.com/kinarch/kinarch/types"
)

// Status holds the per-invocation outcome counters. It is reported as a
// single structured log line when the invocation completes, which is the
// diagnostic surface consumed by the external log collector.
type Status struct {
	Records        int
	Entries        int
	Objects        int
	Written        int
	Filtered       int
	DecodeFailures int
	WriteFailures  int
}

// Update tallies one record outcome.
func (s *Status) Update(outcome types.Outcome) {
	switch outcome.Status {
	case types.OutcomeWritten:
		s.Written++
	case types.OutcomeFiltered:
		s.Filtered++
	case types.OutcomeDecodeFailed:
		s.DecodeFailures++
	case types.OutcomeWriteFailed:
		s.WriteFailures++
	}
}

// LogValue implements slog.LogValuer.
func (s *Status) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("records", s.Records),
		slog.Int("entries", s.Entries),
		slog.Int("objects", s.Objects),
		slog.Int("written", s.Written),
		slog.Int("filtered", s.Filtered),
		slog.Int("decode_failures", s.DecodeFailures),
		slog.Int("write_failures", s.WriteFailures),
	)
}

// Result is the aggregate outcome of one invocation: one outcome per input
// record, in input order.
type Result struct {
	Outcomes []types.Outcome
	Status   Status
}

// RetryableSequenceTokens returns the sequence tokens of records the caller
// should re-deliver. Write failures are always retryable; decode failures
// only when the policy asks for them - the same bytes would fail to decode
// again, so re-delivery is usually wasted work.
func (r *Result) RetryableSequenceTokens(retryDecodeFailures bool) []string {
	var tokens []string
	for _, outcome := range r.Outcomes {
		switch outcome.Status {
		case types.OutcomeWriteFailed:
			tokens = append(tokens, outcome.SequenceToken)
		case types.OutcomeDecodeFailed:
			if retryDecodeFailures {
				tokens = append(tokens, outcome.SequenceToken)
			}
		}
	}
	return tokens
}
