package snapshot

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("recorder closed")

// Sink persists snapshots. Store and Dir are sinks.
type Sink interface {
	Save(s *Snapshot) error
}

// Recorder hands snapshots to worker goroutines that write them to a sink,
// so the simulation loop only pays for the copy.
type Recorder struct {
	sink   Sink
	jobs   chan *Snapshot
	wg     sync.WaitGroup
	logger *log.Logger

	saved atomic.Uint64
	mu    sync.Mutex
	errs  []error

	// held shared by Record while it queues, exclusively by Close
	state  sync.RWMutex
	closed bool
}

// NewRecorder starts workers draining a queue of buffer snapshots into sink.
// A nil logger discards.
func NewRecorder(sink Sink, workers, buffer int, logger *log.Logger) *Recorder {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Recorder{
		sink:   sink,
		jobs:   make(chan *Snapshot, buffer),
		logger: logger,
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}
	return r
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for s := range r.jobs {
		if err := r.sink.Save(s); err != nil {
			r.logger.Printf("record step %d: %v", s.Step, err)
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			continue
		}
		r.saved.Add(1)
	}
}

// Record queues s, blocking while the queue is full. s must not be modified
// afterwards. It fails with ErrClosed once Close has been called.
func (r *Recorder) Record(s *Snapshot) error {
	r.state.RLock()
	defer r.state.RUnlock()
	if r.closed {
		return fmt.Errorf("record step %d: %w", s.Step, ErrClosed)
	}
	r.jobs <- s
	return nil
}

// Saved is the number of snapshots written so far.
func (r *Recorder) Saved() uint64 { return r.saved.Load() }

// Close stops accepting snapshots, waits for the queue to drain and returns
// every write error.
func (r *Recorder) Close() error {
	r.state.Lock()
	if r.closed {
		r.state.Unlock()
		return nil
	}
	r.closed = true
	close(r.jobs)
	r.state.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}
