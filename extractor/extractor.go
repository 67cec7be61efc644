// Package extractor pulls the identifying fields (id, type, timestamp) from
// decoded log entries using configurable field names. Extraction never
// fails: degraded input is handled by fallback policy so that every entry is
// always assigned some id, type and timestamp.
package extractor

import (
	"strconv"
	"strings"
	"time"

	"github.com/btubbs/datetime"
	"github.com/google/uuid"

	"github.com/kinarch/kinarch/types"
)

const (
	// MarkerUnknownType is the suffix applied when the type field is absent
	MarkerUnknownType = "unknown_type"
	// MarkerNoTimestamp is appended to the type when the timestamp field is
	// absent, keeping such records separable in storage
	MarkerNoTimestamp = "_no_timestamp"
)

// Fields is the extracted (id, type, timestamp) tuple for one entry.
type Fields struct {
	ID string
	// Type is the type used for storage keys, possibly demoted to the
	// unknown hierarchy when the timestamp field is absent
	Type string
	// BaseType is the type as extracted, before any timestamp demotion.
	// Whitelist admission uses BaseType: a missing timestamp changes where
	// an entry is stored, never whether it is archived.
	BaseType  string
	Timestamp time.Time

	// IDSynthesized reports that the id field was absent and the id was
	// derived from the record's sequence token
	IDSynthesized bool
	// TimestampFallback reports that the timestamp was absent or unparsable
	// and the invocation receipt time was used instead
	TimestampFallback bool
}

// Extractor reads identifying fields by configured names.
type Extractor struct {
	idField        string
	typeField      string
	timestampField string
	unknownPrefix  string
}

func New(idField, typeField, timestampField, unknownPrefix string) *Extractor {
	return &Extractor{
		idField:        idField,
		typeField:      typeField,
		timestampField: timestampField,
		unknownPrefix:  unknownPrefix,
	}
}

// Extract derives the identifying fields for an entry.
// sequenceToken is the originating record's shard-qualified sequence id,
// used to synthesize a unique entry id when the id field is absent.
// receivedAt is the invocation receipt time, the timestamp of last resort.
func (e *Extractor) Extract(entry types.LogEntry, sequenceToken string, receivedAt time.Time) Fields {
	var f Fields

	f.ID = e.extractID(entry, sequenceToken, &f)
	f.Type = e.extractType(entry)
	f.BaseType = f.Type

	v, present := entry.GetValue(e.timestampField)
	if !present {
		// missing timestamp demotes the entry to the unknown hierarchy so
		// it stays traceable without blocking ingestion
		if !strings.HasPrefix(f.Type, e.unknownPrefix) {
			f.Type = e.unknownPrefix + "/" + f.Type
		}
		f.Type += MarkerNoTimestamp
		f.Timestamp = receivedAt
		f.TimestampFallback = true
		return f
	}

	ts, ok := parseTimestamp(v)
	if !ok {
		f.Timestamp = receivedAt
		f.TimestampFallback = true
		return f
	}
	f.Timestamp = ts
	return f
}

func (e *Extractor) extractID(entry types.LogEntry, sequenceToken string, f *Fields) string {
	v, present := entry.GetValue(e.idField)
	if present {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id
			}
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
	}
	f.IDSynthesized = true
	if sequenceToken != "" {
		return sequenceToken
	}
	return uuid.NewString()
}

func (e *Extractor) extractType(entry types.LogEntry) string {
	if logType, ok := entry.GetString(e.typeField); ok {
		return logType
	}
	return e.unknownPrefix + "/" + MarkerUnknownType
}

// parseTimestamp interprets a field value as a point in time. Strings are
// parsed as ISO 8601 (with or without zone, defaulting to UTC); numbers are
// treated as epoch seconds, or epoch milliseconds when too large to be a
// plausible seconds value.
func parseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case string:
		if ts == "" {
			return time.Time{}, false
		}
		if t, err := datetime.Parse(ts, time.UTC); err == nil {
			return t, true
		}
		// epoch value serialized as a string
		if f, err := strconv.ParseFloat(ts, 64); err == nil {
			return epochToTime(f), true
		}
		return time.Time{}, false
	case float64:
		return epochToTime(ts), true
	default:
		return time.Time{}, false
	}
}

// epoch values above this are taken to be milliseconds (around year 33658
// when read as seconds)
const epochMillisThreshold = 1e12

func epochToTime(f float64) time.Time {
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	secs := int64(f)
	nanos := int64((f - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos).UTC()
}
