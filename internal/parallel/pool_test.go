package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{4, 4},
		{1, 1},
		{0, runtime.GOMAXPROCS(0)},
		{-5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		pool := NewWorkerPool(tt.workers)
		if pool.Workers() != tt.want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", tt.workers, pool.Workers(), tt.want)
		}
		if !pool.IsRunning() {
			t.Errorf("NewWorkerPool(%d) not running", tt.workers)
		}
		pool.Close()
	}
}

func TestDispatchRunsEveryGroupOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 16} {
		pool := NewWorkerPool(workers)

		const n = 1000
		var hits [n]atomic.Int32
		if err := pool.Dispatch(n, func(i int) { hits[i].Add(1) }); err != nil {
			t.Fatalf("workers=%d: Dispatch() error = %v", workers, err)
		}
		for i := range hits {
			if got := hits[i].Load(); got != 1 {
				t.Fatalf("workers=%d: group %d ran %d times, want 1", workers, i, got)
			}
		}
		pool.Close()
	}
}

// A second dispatch reading what the first wrote must see every write, as
// the vertical pass does with the horizontal pass output.
func TestDispatchIsBarrier(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	const n = 256
	first := make([]int, n)
	if err := pool.Dispatch(n, func(i int) {
		time.Sleep(time.Microsecond)
		first[i] = i + 1
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	second := make([]int, n)
	if err := pool.Dispatch(n, func(i int) { second[i] = first[n-1-i] * 2 }); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	for i, v := range second {
		if want := (n - i) * 2; v != want {
			t.Fatalf("second[%d] = %d, want %d", i, v, want)
		}
	}
}

func TestDispatchEmpty(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	for _, n := range []int{0, -1} {
		if err := pool.Dispatch(n, func(int) { t.Error("group ran") }); err != nil {
			t.Errorf("Dispatch(%d) error = %v", n, err)
		}
	}
}

func TestDispatchAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()
	pool.Close() // idempotent

	if pool.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
	ran := false
	err := pool.Dispatch(3, func(int) { ran = true })
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Dispatch() after Close error = %v, want ErrPoolClosed", err)
	}
	if ran {
		t.Error("group ran on a closed pool")
	}
}

func TestConcurrentDispatches(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	const callers, n = 8, 200
	var total atomic.Int64
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local atomic.Int64
			if err := pool.Dispatch(n, func(int) {
				local.Add(1)
				total.Add(1)
			}); err != nil {
				t.Errorf("Dispatch() error = %v", err)
			}
			if local.Load() != n {
				t.Errorf("dispatch ran %d groups, want %d", local.Load(), n)
			}
		}()
	}
	wg.Wait()

	if total.Load() != callers*n {
		t.Errorf("total = %d, want %d", total.Load(), callers*n)
	}
}

// Close racing a long dispatch must neither strand groups nor deadlock.
func TestCloseDuringDispatch(t *testing.T) {
	pool := NewWorkerPool(4)

	const n = 64
	var count atomic.Int64
	started := make(chan struct{})
	var once sync.Once
	result := make(chan error, 1)
	go func() {
		result <- pool.Dispatch(n, func(int) {
			once.Do(func() { close(started) })
			time.Sleep(100 * time.Microsecond)
			count.Add(1)
		})
	}()

	<-started
	pool.Close()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dispatch did not return after Close")
	}
	if count.Load() != n {
		t.Errorf("ran %d groups, want %d", count.Load(), n)
	}
}

func TestNoGoroutineLeak(t *testing.T) {
	before := runtime.NumGoroutine()

	for range 10 {
		pool := NewWorkerPool(4)
		_ = pool.Dispatch(100, func(int) {})
		pool.Close()
	}

	// Helpers exit before Close returns, but the runtime may lag in
	// reporting it.
	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before+2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before+2 {
		t.Errorf("goroutines: before=%d after=%d", before, after)
	}
}

func BenchmarkDispatch(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	var sink atomic.Int64
	for b.Loop() {
		_ = pool.Dispatch(1024, func(i int) { sink.Add(int64(i)) })
	}
}
