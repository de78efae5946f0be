package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnhub/lms-portal-api/internal/dto"
)

type checkerStub struct {
	calls int64
	done  chan struct{}
}

func (c *checkerStub) CheckEnrollmentEvents(ctx context.Context) (dto.CheckEventsResult, error) {
	if atomic.AddInt64(&c.calls, 1) == 1 {
		close(c.done)
	}
	return dto.CheckEventsResult{}, nil
}

func TestSchedulerRunsImmediatePass(t *testing.T) {
	checker := &checkerStub{done: make(chan struct{})}
	s := New(checker, nil, time.Hour, nil)

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-checker.done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ran the initial check")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	checker := &checkerStub{done: make(chan struct{})}
	s := New(checker, nil, time.Hour, nil)

	s.Start(context.Background())
	select {
	case <-checker.done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ran the initial check")
	}
	s.Stop()
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&checker.calls), int64(1))
}
