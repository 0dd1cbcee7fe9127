package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecomputer struct {
	calls atomic.Int32
	err   error
}

func (r *countingRecomputer) RecomputeAllPriceSummaries(ctx context.Context) (int, error) {
	r.calls.Add(1)
	return 3, r.err
}

func TestNewPriceSummaryScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewPriceSummaryScheduler("every now and then", &countingRecomputer{}, 0)
	assert.Error(t, err)
}

func TestNewPriceSummaryScheduler_AcceptsDescriptorsAndFields(t *testing.T) {
	for _, spec := range []string{"@hourly", "@every 10m", "0 3 * * *"} {
		_, err := NewPriceSummaryScheduler(spec, &countingRecomputer{}, time.Minute)
		assert.NoError(t, err, spec)
	}
}

func TestRunOnce(t *testing.T) {
	rec := &countingRecomputer{}
	s, err := NewPriceSummaryScheduler("@hourly", rec, 0)
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	last, lastErr := s.LastRun()
	assert.False(t, last.IsZero())
	assert.NoError(t, lastErr)

	rec.err = errors.New("db down")
	assert.Error(t, s.RunOnce(context.Background()))
	_, lastErr = s.LastRun()
	assert.EqualError(t, lastErr, "db down")
	assert.Equal(t, int32(2), rec.calls.Load())
}

func TestScheduleRunsJob(t *testing.T) {
	rec := &countingRecomputer{}
	s, err := NewPriceSummaryScheduler("@every 1s", rec, time.Second)
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return rec.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
