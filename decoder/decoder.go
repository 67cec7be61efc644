// Package decoder turns raw stream record payloads into structured log
// entries. Decoding never panics and never halts a batch: every payload
// produces either a set of entries or a typed DecodeFailure.
package decoder

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kinarch/kinarch/types"
)

// DecodeFailure describes a payload that could not be decoded. It is a
// record-level error: the batch continues, and the record is reported as
// DecodeFailed rather than retried (the same bytes would fail again).
type DecodeFailure struct {
	Reason      string
	PayloadSize int
	Cause       error
}

func (e *DecodeFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode failed (%s, %d bytes): %v", e.Reason, e.PayloadSize, e.Cause)
	}
	return fmt.Sprintf("decode failed (%s, %d bytes)", e.Reason, e.PayloadSize)
}

func (e *DecodeFailure) Unwrap() error { return e.Cause }

func newFailure(reason string, size int, cause error) *DecodeFailure {
	return &DecodeFailure{Reason: reason, PayloadSize: size, Cause: cause}
}

// gzip magic number 0x1f 0x8b
var gzipMagic = []byte{0x1f, 0x8b}

// Decode decodes one raw payload into zero or more log entries.
//
// Payloads may be gzip-compressed; they are transparently decompressed.
// Payloads carrying a CloudWatch Logs subscription-filter envelope are
// expanded into the JSON log events they contain; control messages expand to
// zero entries. Any other payload must be a single JSON object.
func Decode(data []byte) ([]types.LogEntry, error) {
	if len(data) == 0 {
		return nil, newFailure("empty payload", 0, nil)
	}

	if bytes.HasPrefix(data, gzipMagic) {
		decompressed, err := gunzip(data)
		if err != nil {
			return nil, newFailure("truncated or corrupt gzip payload", len(data), err)
		}
		data = decompressed
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, newFailure("malformed JSON", len(data), err)
	}

	// payloads from CloudWatch Logs subscription filters wrap the actual
	// log events in an envelope keyed by messageType
	if messageType, ok := payload["messageType"].(string); ok {
		return expandCloudWatchEnvelope(messageType, payload, len(data))
	}

	return []types.LogEntry{types.LogEntry(payload)}, nil
}

// expandCloudWatchEnvelope unwraps a CloudWatch Logs subscription-filter
// payload into its individual log events.
// https://docs.aws.amazon.com/AmazonCloudWatch/latest/logs/SubscriptionFilters.html
func expandCloudWatchEnvelope(messageType string, payload map[string]any, size int) ([]types.LogEntry, error) {
	switch messageType {
	case "CONTROL_MESSAGE":
		// sent by CloudWatch to check delivery - nothing to archive
		return nil, nil
	case "DATA_MESSAGE":
		logEvents, ok := payload["logEvents"].([]any)
		if !ok {
			return nil, newFailure("DATA_MESSAGE without logEvents", size, nil)
		}
		var entries []types.LogEntry
		for _, event := range logEvents {
			eventMap, ok := event.(map[string]any)
			if !ok {
				continue
			}
			message, ok := eventMap["message"].(string)
			if !ok {
				continue
			}
			var entry map[string]any
			if err := json.Unmarshal([]byte(message), &entry); err != nil {
				// non-JSON messages inside an envelope are skipped, not
				// failed - one bad event must not poison its siblings
				continue
			}
			entries = append(entries, types.LogEntry(entry))
		}
		return entries, nil
	default:
		return nil, newFailure(fmt.Sprintf("unknown messageType %q", messageType), size, nil)
	}
}

func gunzip(data []byte) ([]byte, error) {
	gzReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gzReader.Close()

	decompressed, err := io.ReadAll(gzReader)
	if err != nil {
		return nil, err
	}
	return decompressed, nil
}
