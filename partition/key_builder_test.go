package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGranularity(t *testing.T) {
	tests := []struct {
		input   string
		want    Granularity
		wantErr bool
	}{
		{input: "hour", want: GranularityHour},
		{input: "day", want: GranularityDay},
		{input: "month", want: GranularityMonth},
		{input: "minute", wantErr: true},
		{input: "", wantErr: true},
		{input: "Hour", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseGranularity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGranularityPath(t *testing.T) {
	ts := time.Date(2024, 3, 7, 14, 42, 11, 0, time.UTC)

	assert.Equal(t, "2024-03/07/14", GranularityHour.Path(ts))
	assert.Equal(t, "2024-03/07", GranularityDay.Path(ts))
	assert.Equal(t, "2024-03", GranularityMonth.Path(ts))
}

func TestGranularityPathUTCNormalization(t *testing.T) {
	// 23:30 in UTC+2 is 21:30 UTC - the bucket must use the UTC hour
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 7, 23, 30, 0, 0, loc)

	assert.Equal(t, "2024-03/07/21", GranularityHour.Path(ts))
}

func TestKeyDeterminism(t *testing.T) {
	b := NewKeyBuilder("logs/archive", GranularityHour)
	ts := time.Date(2024, 3, 7, 14, 42, 11, 0, time.UTC)

	key1 := b.Key("app", ts, "abc-123")
	key2 := b.Key("app", ts, "abc-123")
	assert.Equal(t, key1, key2)
	assert.Equal(t, "logs/archive/app/2024-03/07/14/abc-123.json.gz", key1)

	// timestamps within the same bucket yield the same key
	later := ts.Add(10 * time.Minute)
	assert.Equal(t, key1, b.Key("app", later, "abc-123"))

	// a different bucket yields a different key
	nextHour := ts.Add(time.Hour)
	assert.NotEqual(t, key1, b.Key("app", nextHour, "abc-123"))
}

func TestKeyEscapesID(t *testing.T) {
	b := NewKeyBuilder("logs", GranularityDay)
	ts := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	key := b.Key("app", ts, "shardId-000/49590")
	assert.Equal(t, "logs/app/2024-03/07/shardId-000%2F49590.json.gz", key)
}

func TestKeyBuilderTrimsPrefixSlash(t *testing.T) {
	b := NewKeyBuilder("logs/", GranularityMonth)
	ts := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "logs/app/2024-03", b.BucketPrefix("app", ts))
}
