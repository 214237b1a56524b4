package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/gr20-alert/internal/timer"
	"github.com/smukkama/gr20-alert/pkg/logger"
)

func TestRepeatSurvivesPanickingRun(t *testing.T) {
	sched := timer.NewScheduler(1, logger.Nop())
	sched.Start(context.Background())
	defer sched.Stop()

	s := &reportScheduler{scheduler: sched, log: logger.Nop()}

	var runs atomic.Int32
	next := func(now time.Time) (time.Time, error) {
		return now.Add(5 * time.Millisecond), nil
	}
	err := s.repeat("morning-report", next, func(ctx context.Context) {
		runs.Add(1)
		panic("provider exploded")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRepeatReportsScheduleError(t *testing.T) {
	sched := timer.NewScheduler(1, logger.Nop())
	sched.Start(context.Background())
	sched.Stop()

	s := &reportScheduler{scheduler: sched, log: logger.Nop()}
	next := func(now time.Time) (time.Time, error) {
		return now.Add(time.Hour), nil
	}

	err := s.repeat("evening-report", next, func(ctx context.Context) {})
	assert.ErrorIs(t, err, timer.ErrSchedulerStopped)
}
