package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/movers/pkg/logger"
)

type testJob struct {
	name     string
	schedule string
	calls    int32
	failures int32 // fail this many calls first
	block    chan struct{}
	panics   bool
}

func (j *testJob) Name() string     { return j.name }
func (j *testJob) Schedule() string { return j.schedule }

func (j *testJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if j.panics {
		panic("boom")
	}
	if n <= atomic.LoadInt32(&j.failures) {
		return errors.New("transient")
	}
	return nil
}

func newJob(name string) *testJob {
	return &testJob{name: name, schedule: "0 0 19 * * MON-FRI"}
}

func waitForHistory(t *testing.T, s *Scheduler, name string, n int) *JobHistory {
	t.Helper()
	var h *JobHistory
	require.Eventually(t, func() bool {
		var err error
		h, err = s.GetJobHistory(name)
		return err == nil && len(h.Results) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return h
}

func TestAddJob(t *testing.T) {
	s := New(logger.Nop(), Options{})

	require.NoError(t, s.AddJob(newJob("daily_movers")))
	assert.Error(t, s.AddJob(newJob("daily_movers")), "duplicate name")

	bad := newJob("bad")
	bad.schedule = "not a cron"
	assert.Error(t, s.AddJob(bad))

	assert.Equal(t, []string{"daily_movers"}, s.GetAllJobs())
}

func TestRunJob_RecordsHistory(t *testing.T) {
	s := New(logger.Nop(), Options{})
	job := newJob("daily_movers")
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("daily_movers"))
	h := waitForHistory(t, s, "daily_movers", 1)

	res := h.Results[0]
	assert.True(t, res.Success)
	assert.Equal(t, "manual", res.Trigger)
	assert.Equal(t, 1, res.Attempts)

	assert.Error(t, s.RunJob("missing"))
}

func TestRunJob_NoRetriesByDefault(t *testing.T) {
	s := New(logger.Nop(), Options{})
	job := newJob("daily_movers")
	job.failures = 5
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("daily_movers"))
	h := waitForHistory(t, s, "daily_movers", 1)

	assert.False(t, h.Results[0].Success)
	assert.Equal(t, "transient", h.Results[0].Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestRunJob_Retries(t *testing.T) {
	s := New(logger.Nop(), Options{MaxRetries: 2, RetryDelay: time.Millisecond})
	job := newJob("daily_movers")
	job.failures = 2
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("daily_movers"))
	h := waitForHistory(t, s, "daily_movers", 1)

	assert.True(t, h.Results[0].Success)
	assert.Equal(t, 3, h.Results[0].Attempts)
}

func TestRunJob_SkipsOverlap(t *testing.T) {
	s := New(logger.Nop(), Options{})
	job := newJob("daily_movers")
	job.block = make(chan struct{})
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("daily_movers"))
	require.Eventually(t, func() bool { return s.IsRunning("daily_movers") }, time.Second, time.Millisecond)

	err := s.RunJob("daily_movers")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	waitForHistory(t, s, "daily_movers", 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestRunJob_RecoversPanic(t *testing.T) {
	s := New(logger.Nop(), Options{})
	job := newJob("daily_movers")
	job.panics = true
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("daily_movers"))
	h := waitForHistory(t, s, "daily_movers", 1)

	assert.False(t, h.Results[0].Success)
	assert.Contains(t, h.Results[0].Error, "panicked")
}

func TestStop_CancelsRunningJob(t *testing.T) {
	s := New(logger.Nop(), Options{})
	job := newJob("daily_movers")
	job.block = make(chan struct{})
	require.NoError(t, s.AddJob(job))
	s.Start()

	require.NoError(t, s.RunJob("daily_movers"))
	require.Eventually(t, func() bool { return s.IsRunning("daily_movers") }, time.Second, time.Millisecond)

	s.Stop()

	h, err := s.GetJobHistory("daily_movers")
	require.NoError(t, err)
	require.Len(t, h.Results, 1)
	assert.Contains(t, h.Results[0].Error, context.Canceled.Error())
}

func TestGetJobStats(t *testing.T) {
	s := New(logger.Nop(), Options{Location: time.UTC})
	ok := newJob("ok")
	bad := newJob("bad")
	bad.failures = 100
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.RunJob("ok"))
	require.NoError(t, s.RunJob("bad"))
	waitForHistory(t, s, "ok", 1)
	waitForHistory(t, s, "bad", 1)

	stats := s.GetJobStats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)
	assert.NotNil(t, stats["ok"].LastSuccess)
	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.NotNil(t, stats["bad"].LastFailure)
	assert.NotNil(t, stats["ok"].NextRun, "next tick known once started")
}

func TestRemoveJob(t *testing.T) {
	s := New(logger.Nop(), Options{})
	require.NoError(t, s.AddJob(newJob("daily_movers")))

	require.NoError(t, s.RemoveJob("daily_movers"))
	assert.Empty(t, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("daily_movers"))
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+10; i++ {
		h.Add(JobResult{JobName: "x", StartTime: time.Unix(int64(i), 0), Success: i%2 == 0})
	}

	assert.Len(t, h.Results, historyLimit)
	assert.Len(t, h.Latest(5), 5)
	assert.Empty(t, h.Latest(0))
	assert.Equal(t, historyLimit/2, h.Failures())
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)
	assert.Equal(t, 0.0, (&JobHistory{}).SuccessRate())

	last, ok := h.Last()
	require.True(t, ok)
	assert.False(t, last.Success)
	assert.Equal(t, 1, h.ConsecutiveFailures())
	assert.Equal(t, time.Unix(108, 0), *h.LastWhere(true))
	assert.Equal(t, time.Unix(109, 0), *h.LastWhere(false))

	snap := h.Snapshot()
	snap.Results[0].JobName = "changed"
	assert.Equal(t, "x", h.Results[0].JobName)

	_, ok = (&JobHistory{}).Last()
	assert.False(t, ok)
	assert.Nil(t, (&JobHistory{}).LastWhere(true))
}
