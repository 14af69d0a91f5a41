package tasks

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carebridge/claims-pipeline/common/pcontext"
)

// Scheduler runs named recurring tasks on their own tickers. Task failures
// are logged and retried on the next tick; a panic in a task is a logic
// fault and is allowed to crash the process.
type Scheduler struct {
	ctx  pcontext.PipelineContext
	stop chan struct{}
	wg   sync.WaitGroup

	stopOnce sync.Once
}

func NewScheduler(ctx pcontext.PipelineContext) *Scheduler {
	return &Scheduler{
		ctx:  ctx,
		stop: make(chan struct{}),
	}
}

// StartRecurring runs fn immediately and then on every interval until Stop.
func (s *Scheduler) StartRecurring(name string, interval time.Duration, fn func(ctx pcontext.PipelineContext) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := s.ctx.LogWithFields(logrus.Fields{"task": name})
		run := func() {
			if err := fn(ctx); err != nil {
				ctx.Log.Error("Task failed - will retry on next tick: ", err)
			}
		}
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts all tasks and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}
