package batch_writer

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
)

// API error codes worth retrying - throttling and transient server faults
var transientErrorCodes = map[string]struct{}{
	"SlowDown":             {},
	"Throttling":           {},
	"ThrottlingException":  {},
	"RequestLimitExceeded": {},
	"RequestTimeout":       {},
	"InternalError":        {},
	"ServiceUnavailable":   {},
}

// isTransient reports whether a write error is worth retrying. Client faults
// (access denied, no such bucket) fail fast; throttling, server faults and
// connection-level errors are retried up to the configured ceiling.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientErrorCodes[apiErr.ErrorCode()]; ok {
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// errors we cannot classify (connection resets surface as plain errors)
	// default to retryable - the attempt ceiling bounds the cost
	return true
}
