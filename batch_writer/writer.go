// Package batch_writer persists grouped log entries to the object store.
// Entries sharing a (type, time bucket) key prefix are serialized as
// gzip-compressed NDJSON and written with a single PutObject call per group.
// Transient failures are retried with bounded exponential backoff; a group
// that exhausts its retries fails alone, leaving the other groups of the
// invocation unaffected.
package batch_writer

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kinarch/kinarch/rate_limiter"
)

const (
	contentType     = "application/x-ndjson"
	contentEncoding = "gzip"
)

// ObjectPutter is the narrow slice of the S3 API the writer needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// WriteError is returned for a group whose write could not be completed
// within the retry ceiling.
type WriteError struct {
	Key      string
	Attempts int
	Cause    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write of %s failed after %d attempt(s): %v", e.Key, e.Attempts, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// Config holds the writer tuning knobs.
type Config struct {
	Bucket        string
	GzipLevel     int
	MaxRetries    int
	MinRetryDelay time.Duration
	// MaxConcurrency caps in-flight writes; RateLimit additionally caps
	// writes per second when non-zero, with RateBurst as the bucket size
	MaxConcurrency int
	RateLimit      float64
	RateBurst      int
}

// Writer issues the object-store writes for one invocation. The client is
// reused across records within an invocation; the writer itself holds no
// cross-invocation state.
type Writer struct {
	client  ObjectPutter
	cfg     Config
	limiter *rate_limiter.APILimiter
	backoff *ExponentialJitterBackoff
}

func NewWriter(client ObjectPutter, cfg Config) *Writer {
	def := &rate_limiter.Definition{
		Name:           "object-writes",
		FillRate:       rate.Limit(cfg.RateLimit),
		BucketSize:     int64(cfg.RateBurst),
		MaxConcurrency: int64(cfg.MaxConcurrency),
	}
	slog.Debug("object write limiter", "definition", def.String())

	return &Writer{
		client:  client,
		cfg:     cfg,
		limiter: rate_limiter.NewAPILimiter(def),
		backoff: NewExponentialJitterBackoff(cfg.MinRetryDelay),
	}
}

// GroupResult pairs a group with its terminal write error, nil on success.
type GroupResult struct {
	Group *Group
	Err   error
}

// WriteGroups writes every group, running writes concurrently under the
// configured limit. Results are index-aligned with the input; group writes
// are independent and a failure never aborts the others.
func (w *Writer) WriteGroups(ctx context.Context, groups []*Group) []GroupResult {
	results := make([]GroupResult, len(groups))

	var eg errgroup.Group
	for i, group := range groups {
		i, group := i, group
		results[i].Group = group
		eg.Go(func() error {
			results[i].Err = w.writeGroup(ctx, group)
			return nil
		})
	}
	// writers only record per-group results, they never return errors
	_ = eg.Wait()

	return results
}

func (w *Writer) writeGroup(ctx context.Context, group *Group) error {
	body, err := w.serialize(group)
	if err != nil {
		// serialization failure is deterministic, retrying cannot help
		return &WriteError{Key: group.Key, Attempts: 0, Cause: err}
	}

	attempts := w.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := w.backoff.Delay(attempt - 1)
			slog.Debug("retrying group write", "key", group.Key, "attempt", attempt, "delay", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &WriteError{Key: group.Key, Attempts: attempt, Cause: ctx.Err()}
			}
		}

		lastErr = w.putObject(ctx, group.Key, body)
		if lastErr == nil {
			slog.Info("group written", "key", group.Key, "records", len(group.Items), "bytes", len(body))
			return nil
		}
		if !isTransient(lastErr) {
			slog.Error("group write failed with non-retryable error", "key", group.Key, "error", lastErr)
			return &WriteError{Key: group.Key, Attempts: attempt + 1, Cause: lastErr}
		}
		slog.Warn("group write attempt failed", "key", group.Key, "attempt", attempt+1, "error", lastErr)
	}

	return &WriteError{Key: group.Key, Attempts: attempts, Cause: lastErr}
}

func (w *Writer) putObject(ctx context.Context, key string, body []byte) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	defer w.limiter.Release()

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(w.cfg.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String(contentType),
		ContentEncoding: aws.String(contentEncoding),
	})
	return err
}

// serialize renders the group as gzip-compressed NDJSON, one entry per line.
// The object is written in full or not at all - a failed put leaves no
// partial object behind.
func (w *Writer) serialize(group *Group) ([]byte, error) {
	var buf bytes.Buffer
	gzWriter, err := gzip.NewWriterLevel(&buf, w.cfg.GzipLevel)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}

	encoder := json.NewEncoder(gzWriter)
	for _, item := range group.Items {
		// Encode appends the newline delimiter itself
		if err := encoder.Encode(item.Entry); err != nil {
			return nil, fmt.Errorf("error serializing entry for %s: %w", group.Key, err)
		}
	}

	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("error compressing group %s: %w", group.Key, err)
	}
	return buf.Bytes(), nil
}
