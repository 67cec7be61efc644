package partition

import (
	"fmt"
	"time"
)

// Granularity is the time-bucket width used when deriving storage keys.
// Wider buckets bound the number of distinct objects per type per time
// window at the cost of coarser partition pruning.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// ParseGranularity validates a configured granularity value.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityHour, GranularityDay, GranularityMonth:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("invalid time bucket granularity %q: expected hour, day or month", s)
	}
}

// Truncate returns the start of the bucket containing t, in UTC.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	}
}

// Path renders the bucket containing t as a key path segment.
// The layout nests year-month/day/hour so that prefix listings narrow
// naturally from coarse to fine.
func (g Granularity) Path(t time.Time) string {
	t = g.Truncate(t)
	switch g {
	case GranularityMonth:
		return t.Format("2006-01")
	case GranularityDay:
		return t.Format("2006-01/02")
	default:
		return t.Format("2006-01/02/15")
	}
}
