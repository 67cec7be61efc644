package batch_writer

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinarch/kinarch/types"
)

// fakePutter scripts per-key failures: a key fails with failErr until its
// failure budget is used up, then succeeds.
type fakePutter struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	failErr  error
	objects  map[string][]byte
}

func newFakePutter() *fakePutter {
	return &fakePutter{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		objects:  make(map[string][]byte),
	}
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := *params.Key
	f.calls[key]++
	if f.failures[key] > 0 {
		f.failures[key]--
		return nil, f.failErr
	}

	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = body
	return &s3.PutObjectOutput{}, nil
}

func throttleErr() error {
	return &smithy.GenericAPIError{Code: "SlowDown", Message: "please slow down", Fault: smithy.FaultServer}
}

func accessDeniedErr() error {
	return &smithy.GenericAPIError{Code: "AccessDenied", Message: "no", Fault: smithy.FaultClient}
}

func testWriter(client ObjectPutter) *Writer {
	return NewWriter(client, Config{
		Bucket:         "archive-bucket",
		GzipLevel:      gzip.BestSpeed,
		MaxRetries:     2,
		MinRetryDelay:  time.Millisecond,
		MaxConcurrency: 4,
	})
}

func decodeNDJSON(t *testing.T, body []byte) []types.LogEntry {
	t.Helper()
	gzReader, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer gzReader.Close()

	var entries []types.LogEntry
	scanner := bufio.NewScanner(gzReader)
	for scanner.Scan() {
		var entry types.LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestBuildGroups(t *testing.T) {
	items := []Item{
		{Position: 0, Key: "logs/app/2024-03/07/14/a.json.gz", BucketPrefix: "logs/app/2024-03/07/14", Entry: types.LogEntry{"log_id": "a"}},
		{Position: 1, Key: "logs/audit/2024-03/07/14/b.json.gz", BucketPrefix: "logs/audit/2024-03/07/14", Entry: types.LogEntry{"log_id": "b"}},
		{Position: 2, Key: "logs/app/2024-03/07/14/c.json.gz", BucketPrefix: "logs/app/2024-03/07/14", Entry: types.LogEntry{"log_id": "c"}},
	}

	groups := BuildGroups(items)
	require.Len(t, groups, 2)

	// the group takes the first item's key and first-seen order is kept
	assert.Equal(t, "logs/app/2024-03/07/14/a.json.gz", groups[0].Key)
	assert.Equal(t, []int{0, 2}, groups[0].Positions())
	assert.Equal(t, "logs/audit/2024-03/07/14/b.json.gz", groups[1].Key)
	assert.Equal(t, []int{1}, groups[1].Positions())
}

func TestBuildGroupsEmpty(t *testing.T) {
	assert.Empty(t, BuildGroups(nil))
}

func TestWriteGroups(t *testing.T) {
	putter := newFakePutter()
	w := testWriter(putter)

	groups := BuildGroups([]Item{
		{Position: 0, Key: "logs/app/k/a.json.gz", BucketPrefix: "logs/app/k", Entry: types.LogEntry{"log_id": "a", "n": float64(1)}},
		{Position: 1, Key: "logs/app/k/c.json.gz", BucketPrefix: "logs/app/k", Entry: types.LogEntry{"log_id": "c", "n": float64(2)}},
	})

	results := w.WriteGroups(context.Background(), groups)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	body, ok := putter.objects["logs/app/k/a.json.gz"]
	require.True(t, ok)

	entries := decodeNDJSON(t, body)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0]["log_id"])
	assert.Equal(t, "c", entries[1]["log_id"])
}

func TestWriteGroupsRateLimited(t *testing.T) {
	putter := newFakePutter()
	w := NewWriter(putter, Config{
		Bucket:         "archive-bucket",
		GzipLevel:      gzip.BestSpeed,
		MaxRetries:     0,
		MinRetryDelay:  time.Millisecond,
		MaxConcurrency: 4,
		RateLimit:      1000,
		RateBurst:      1,
	})

	groups := BuildGroups([]Item{
		{Position: 0, Key: "logs/app/k/a.json.gz", BucketPrefix: "logs/app/k", Entry: types.LogEntry{"log_id": "a"}},
		{Position: 1, Key: "logs/audit/k/b.json.gz", BucketPrefix: "logs/audit/k", Entry: types.LogEntry{"log_id": "b"}},
	})

	// both groups complete under the write rate limit
	results := w.WriteGroups(context.Background(), groups)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Len(t, putter.objects, 2)
}

func TestWriteGroupsRetriesWithinCeiling(t *testing.T) {
	putter := newFakePutter()
	putter.failErr = throttleErr()
	putter.failures["logs/app/k/a.json.gz"] = 2

	w := testWriter(putter)
	groups := BuildGroups([]Item{
		{Position: 0, Key: "logs/app/k/a.json.gz", BucketPrefix: "logs/app/k", Entry: types.LogEntry{"log_id": "a"}},
	})

	results := w.WriteGroups(context.Background(), groups)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 3, putter.calls["logs/app/k/a.json.gz"])
}

func TestWriteGroupsExhaustsRetries(t *testing.T) {
	putter := newFakePutter()
	putter.failErr = throttleErr()
	// more failures than max retries allow
	putter.failures["logs/app/k/a.json.gz"] = 10

	w := testWriter(putter)
	groups := BuildGroups([]Item{
		{Position: 0, Key: "logs/app/k/a.json.gz", BucketPrefix: "logs/app/k", Entry: types.LogEntry{"log_id": "a"}},
		{Position: 1, Key: "logs/audit/k/b.json.gz", BucketPrefix: "logs/audit/k", Entry: types.LogEntry{"log_id": "b"}},
	})

	results := w.WriteGroups(context.Background(), groups)
	require.Len(t, results, 2)

	// the throttled group fails alone after maxRetries+1 attempts
	var writeErr *WriteError
	require.ErrorAs(t, results[0].Err, &writeErr)
	assert.Equal(t, 3, writeErr.Attempts)
	assert.Equal(t, "logs/app/k/a.json.gz", writeErr.Key)

	// the other group is unaffected
	require.NoError(t, results[1].Err)
	assert.Contains(t, putter.objects, "logs/audit/k/b.json.gz")
}

func TestWriteGroupsFailsFastOnClientFault(t *testing.T) {
	putter := newFakePutter()
	putter.failErr = accessDeniedErr()
	putter.failures["logs/app/k/a.json.gz"] = 10

	w := testWriter(putter)
	groups := BuildGroups([]Item{
		{Position: 0, Key: "logs/app/k/a.json.gz", BucketPrefix: "logs/app/k", Entry: types.LogEntry{"log_id": "a"}},
	})

	results := w.WriteGroups(context.Background(), groups)

	var writeErr *WriteError
	require.ErrorAs(t, results[0].Err, &writeErr)
	// access denied is not retried
	assert.Equal(t, 1, writeErr.Attempts)
	assert.Equal(t, 1, putter.calls["logs/app/k/a.json.gz"])
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(throttleErr()))
	assert.False(t, isTransient(accessDeniedErr()))
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(context.DeadlineExceeded))
	// unclassifiable errors default to retryable
	assert.True(t, isTransient(io.ErrUnexpectedEOF))
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := NewExponentialJitterBackoff(10 * time.Millisecond)

	first := b.Delay(0)
	assert.GreaterOrEqual(t, first, 8*time.Millisecond)
	assert.Less(t, first, 12*time.Millisecond)

	// attempt 20 would be days uncapped
	assert.Equal(t, maxBackoffDelay, b.Delay(20))
}
