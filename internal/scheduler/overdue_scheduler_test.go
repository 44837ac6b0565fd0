package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-p2p-workflow/internal/logger"
)

type countingChecker struct {
	calls atomic.Int32
	ids   []string
}

func (c *countingChecker) CheckOverdue(context.Context) []string {
	c.calls.Add(1)
	return c.ids
}

func TestNewOverdueScheduler_RejectsInvalidSpec(t *testing.T) {
	_, err := NewOverdueScheduler(&countingChecker{}, "every now and then", logger.Nop())
	assert.Error(t, err)

	_, err = NewOverdueScheduler(&countingChecker{}, "@hourly", logger.Nop())
	assert.NoError(t, err)

	_, err = NewOverdueScheduler(&countingChecker{}, "*/15 * * * *", logger.Nop())
	assert.NoError(t, err)
}

func TestRunOnce(t *testing.T) {
	checker := &countingChecker{ids: []string{"INV-0001", "INV-0002"}}
	s, err := NewOverdueScheduler(checker, "@daily", logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"INV-0001", "INV-0002"}, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestStartRunsOnSchedule(t *testing.T) {
	checker := &countingChecker{}
	s, err := NewOverdueScheduler(checker, "@every 1s", logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return checker.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)

	after := checker.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, checker.calls.Load())
}
