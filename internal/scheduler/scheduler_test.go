package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (r *recordingExpirer) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, now)
	return 2, r.err
}

func (r *recordingExpirer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingReaper struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (r *recordingReaper) ReapStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, cutoff)
	return 1, nil
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestReapSessions_UsesStaleWindow(t *testing.T) {
	reaper := &recordingReaper{}
	s := New(config.SchedulerConfig{Enabled: true}, nil, reaper, 45*time.Minute, logger.NewTestLogger(t))
	s.now = func() time.Time { return fixedNow }

	s.ReapSessions(context.Background())
	require.Len(t, reaper.cutoffs, 1)
	assert.Equal(t, fixedNow.Add(-45*time.Minute), reaper.cutoffs[0])
}

func TestExpireJobs_ToleratesErrors(t *testing.T) {
	expirer := &recordingExpirer{err: stderrors.New("db down")}
	s := New(config.SchedulerConfig{Enabled: true}, expirer, nil, 0, logger.NewTestLogger(t))
	s.now = func() time.Time { return fixedNow }

	s.ExpireJobs(context.Background())
	assert.Equal(t, []time.Time{fixedNow}, expirer.calls)
	assert.Equal(t, defaultStaleAfter, s.staleAfter)
}

func TestStart_RunsSweepsOnSchedule(t *testing.T) {
	expirer := &recordingExpirer{}
	s := New(config.SchedulerConfig{
		Enabled:           true,
		JobExpirySpec:     "@every 1s",
		SessionReaperSpec: "@every 1h",
	}, expirer, &recordingReaper{}, time.Minute, logger.NewTestLogger(t))

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return expirer.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestStart_RejectsBadSpec(t *testing.T) {
	s := New(config.SchedulerConfig{Enabled: true, JobExpirySpec: "every now and then"},
		&recordingExpirer{}, nil, 0, logger.NewTestLogger(t))
	assert.Error(t, s.Start())
}

func TestStart_Disabled(t *testing.T) {
	expirer := &recordingExpirer{}
	s := New(config.SchedulerConfig{Enabled: false}, expirer, nil, 0, logger.NewNoOpLogger())
	require.NoError(t, s.Start())
	assert.Empty(t, s.cron.Entries())
}

func TestCronLoggerFields(t *testing.T) {
	fields := kv([]interface{}{"entry", 3, "next", fixedNow, "dangling"})
	assert.Equal(t, map[string]interface{}{"entry": 3, "next": fixedNow}, fields)
}
