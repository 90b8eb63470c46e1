package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Dispatch on a closed pool.
var ErrPoolClosed = errors.New("parallel: worker pool is closed")

// WorkerPool runs the work-groups of a dispatch on a fixed set of
// goroutines.
//
// A dispatch of n groups is shared by the calling goroutine and up to
// Workers()-1 helpers. Each participant claims the next group index from a
// shared cursor until none are left, so a worker that drew cheap edge
// groups keeps pulling interior ones instead of idling.
//
// WorkerPool is safe for concurrent use. Concurrent dispatches share the
// helpers; each caller always works on its own dispatch.
type WorkerPool struct {
	workers int
	helpers chan *dispatch
	done    chan struct{}
	wg      sync.WaitGroup

	// mu orders hand-off against Close: a dispatch is handed over only
	// while done is open.
	mu     sync.RWMutex
	closed bool
}

// dispatch is one index space being worked through.
type dispatch struct {
	n     int64
	group func(i int)
	next  atomic.Int64

	// helping counts helpers that took this dispatch and have not finished.
	helping sync.WaitGroup
}

// work claims and runs groups until the cursor passes n.
func (d *dispatch) work() {
	for {
		i := d.next.Add(1) - 1
		if i >= d.n {
			return
		}
		d.group(int(i))
	}
}

// NewWorkerPool starts a pool of workers goroutines, counting the caller of
// Dispatch as one of them. workers <= 0 means GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		helpers: make(chan *dispatch),
		done:    make(chan struct{}),
	}

	n := workers - 1
	p.wg.Add(n)
	for range n {
		go p.helper()
	}
	return p
}

func (p *WorkerPool) helper() {
	defer p.wg.Done()
	for {
		select {
		case d := <-p.helpers:
			d.work()
			d.helping.Done()
		case <-p.done:
			return
		}
	}
}

// Dispatch runs group(i) for every i in [0, n) and returns once all have
// finished. Returning is a full barrier: every group's writes are visible
// to the caller.
//
// Only idle helpers join; busy ones are skipped and the caller works
// through whatever is left, so Dispatch completes even if Close runs
// meanwhile.
func (p *WorkerPool) Dispatch(n int, group func(i int)) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	if n <= 0 {
		p.mu.RUnlock()
		return nil
	}

	d := &dispatch{n: int64(n), group: group}
	for range min(n, p.workers) - 1 {
		d.helping.Add(1)
		select {
		case p.helpers <- d:
		default:
			d.helping.Done()
		}
	}
	p.mu.RUnlock()

	d.work()
	d.helping.Wait()
	return nil
}

// Close stops the helpers once they finish the dispatches they joined.
// Close is idempotent.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of goroutines a dispatch can use, the caller
// included.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts dispatches.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}
