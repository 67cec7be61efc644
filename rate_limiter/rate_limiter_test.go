package rate_limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name       string
		definition Definition
		wantErrs   int
	}{
		{
			name:       "concurrency only",
			definition: Definition{Name: "writes", MaxConcurrency: 5},
		},
		{
			name:       "rate only",
			definition: Definition{Name: "writes", FillRate: 10, BucketSize: 2},
		},
		{
			name:       "missing name",
			definition: Definition{MaxConcurrency: 5},
			wantErrs:   1,
		},
		{
			name:       "no limit at all",
			definition: Definition{Name: "writes"},
			wantErrs:   1,
		},
		{
			name:       "rate without bucket size",
			definition: Definition{Name: "writes", FillRate: 10},
			wantErrs:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.definition.Validate(), tt.wantErrs)
		})
	}
}

func TestDefinitionString(t *testing.T) {
	d := &Definition{Name: "writes", FillRate: 10, BucketSize: 2, MaxConcurrency: 5}
	s := d.String()
	assert.Contains(t, s, "Limit(/s): 10")
	assert.Contains(t, s, "Burst: 2")
	assert.Contains(t, s, "MaxConcurrency: 5")
}

func TestAPILimiterConcurrency(t *testing.T) {
	l := NewAPILimiter(&Definition{Name: "writes", MaxConcurrency: 1})

	require.NoError(t, l.Wait(context.Background()))

	// the single slot is held: a second Wait must block until Release
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx))

	l.Release()
	require.NoError(t, l.Wait(context.Background()))
	l.Release()
}

func TestAPILimiterFillRate(t *testing.T) {
	// bucket of 2 tokens refilling at 10/s: two immediate calls pass, the
	// third cannot obtain a token within a 5ms deadline
	l := NewAPILimiter(&Definition{Name: "writes", FillRate: 10, BucketSize: 2})

	require.NoError(t, l.Wait(context.Background()))
	l.Release()
	require.NoError(t, l.Wait(context.Background()))
	l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx))
}

func TestAPILimiterString(t *testing.T) {
	l := NewAPILimiter(&Definition{Name: "writes", FillRate: rate.Limit(10), BucketSize: 2, MaxConcurrency: 5})
	s := l.String()
	assert.Contains(t, s, "Limit(/s): 10")
	assert.Contains(t, s, "MaxConcurrency: 5")
}
