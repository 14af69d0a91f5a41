package tasks

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/pcontext"
)

func TestSchedulerRunsImmediatelyAndRecurs(t *testing.T) {
	s := NewScheduler(pcontext.Initial(config.NewDefaultPipelineConfig()))
	runs := int32(0)
	s.StartRecurring("counter", 10*time.Millisecond, func(_ pcontext.PipelineContext) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestSchedulerRetriesAfterFailure(t *testing.T) {
	s := NewScheduler(pcontext.Initial(config.NewDefaultPipelineConfig()))
	runs := int32(0)
	s.StartRecurring("flaky", 10*time.Millisecond, func(_ pcontext.PipelineContext) error {
		n := atomic.AddInt32(&runs, 1)
		if n == 1 {
			return errors.New("transient failure")
		}
		return nil
	})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestIdlePoolRunsSubmittedWork(t *testing.T) {
	p := NewIdlePool(2)
	defer p.Close()

	done := int32(0)
	p.Submit(func() { atomic.AddInt32(&done, 1) })
	p.Submit(func() { atomic.AddInt32(&done, 1) })
	assert.Equal(t, int32(2), atomic.LoadInt32(&done))
}
