package types

import (
	"fmt"
	"time"
)

// RawRecord is one undecoded unit of input from the upstream stream.
// The payload bytes are owned by the orchestrator for the duration of a
// single invocation and are never mutated.
type RawRecord struct {
	// ShardID identifies the stream partition the record arrived on
	ShardID string
	// SequenceNumber is the stream-assigned position within the shard
	SequenceNumber string
	// PartitionKey is the producer-supplied routing key
	PartitionKey string
	// Data is the opaque payload
	Data []byte
	// ArrivalTime is the approximate time the stream accepted the record
	ArrivalTime time.Time
}

// SequenceToken returns the shard-qualified sequence identifier for the
// record. It is unique within a stream and is used both to synthesize entry
// ids and to report retryable records back to the caller.
func (r *RawRecord) SequenceToken() string {
	if r.ShardID == "" {
		return r.SequenceNumber
	}
	return fmt.Sprintf("%s-%s", r.ShardID, r.SequenceNumber)
}
