package bulk

import (
	"sync"
	"sync/atomic"
)

// Failure records one target that could not be processed.
type Failure struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// Operation tracks an in-flight or completed batch decision. It is owned by
// the caller session and safe to poll from other goroutines while workers run.
type Operation struct {
	total int64

	completed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu       sync.Mutex
	failures []Failure

	done     atomic.Bool
	finished chan struct{}
}

func newOperation(total int) *Operation {
	return &Operation{
		total:    int64(total),
		finished: make(chan struct{}),
	}
}

// Snapshot is a point-in-time view of an operation's progress.
type Snapshot struct {
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures"`
	Done      bool      `json:"done"`
}

// Snapshot returns the current progress. A reader can never observe
// completed > total or succeeded+failed > completed: the counters are loaded
// individually, so completed is clamped to the outcome sum to cover the window
// between a worker's two increments.
func (o *Operation) Snapshot() Snapshot {
	succeeded := o.succeeded.Load()
	failed := o.failed.Load()
	completed := o.completed.Load()
	if succeeded+failed > completed {
		completed = succeeded + failed
	}

	o.mu.Lock()
	failures := make([]Failure, len(o.failures))
	copy(failures, o.failures)
	o.mu.Unlock()

	return Snapshot{
		Total:     int(o.total),
		Completed: int(completed),
		Succeeded: int(succeeded),
		Failed:    int(failed),
		Failures:  failures,
		Done:      o.done.Load(),
	}
}

// Wait blocks until every target has been attempted.
func (o *Operation) Wait() {
	<-o.finished
}

// Done reports whether every target has been attempted.
func (o *Operation) Done() bool {
	return o.done.Load()
}

func (o *Operation) recordSuccess() {
	o.succeeded.Add(1)
	o.completed.Add(1)
}

func (o *Operation) recordFailure(target string, err error) {
	o.mu.Lock()
	o.failures = append(o.failures, Failure{Target: target, Message: err.Error()})
	o.mu.Unlock()
	o.failed.Add(1)
	o.completed.Add(1)
}

func (o *Operation) finish() {
	o.done.Store(true)
	close(o.finished)
}
