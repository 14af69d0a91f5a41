package tasks

import (
	"github.com/Jeffail/tunny"
)

// IdlePool runs low-priority background work (retention sweeps, hash
// backfills) on a small fixed pool so it can never crowd out the load
// workers. Submit blocks when every slot is busy.
type IdlePool struct {
	pool *tunny.Pool
}

func NewIdlePool(workers int) *IdlePool {
	if workers < 1 {
		workers = 1
	}
	return &IdlePool{
		pool: tunny.NewFunc(workers, func(payload interface{}) interface{} {
			payload.(func())()
			return nil
		}),
	}
}

func (p *IdlePool) Submit(fn func()) {
	p.pool.Process(fn)
}

func (p *IdlePool) Close() {
	p.pool.Close()
}
