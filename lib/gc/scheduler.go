package gc

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/vkolb/viewmesh/lib/db/util"
	"github.com/vkolb/viewmesh/lib/event"
)

// Task is deferred-collection work: releasing a table's hold on a fired
// event, propagating a reference release through lib/registry, and so
// on. Task must not block.
type Task func()

type pending struct {
	seq      uint64
	enqueued time.Time
	task     Task
}

// Scheduler runs Task callbacks once their triggering event fires.
type Scheduler struct {
	ready *util.LockFreeMPSC[pending]
	seq   atomic.Uint64

	mu   sync.Mutex
	heap *util.MapHeap

	metrics   *vmetrics.Set
	deferred  *vmetrics.Counter
	completed *vmetrics.Counter
	latency   gometrics.Timer
}

// NewScheduler creates a Scheduler and starts its background drain
// goroutine. Call Close when the scheduler is no longer needed.
func NewScheduler() *Scheduler {
	set := vmetrics.NewSet()
	s := &Scheduler{
		ready:     util.NewLockFreeMPSC[pending](),
		heap:      util.NewMapHeap(),
		metrics:   set,
		deferred:  set.NewCounter("viewmesh_gc_deferred_total"),
		completed: set.NewCounter("viewmesh_gc_completed_total"),
		latency:   gometrics.NewTimer(),
	}
	set.NewGauge("viewmesh_gc_outstanding", func() float64 {
		count, _, _ := s.Outstanding()
		return float64(count)
	})
	go s.drain()
	return s
}

// Defer schedules task to run once ev fires. Safe to call concurrently
// from many goroutines (e.g. one per view doing its own analysis pass).
// There is no way to cancel a pending defer — an event that never fires
// leaves its waiter goroutine running for the lifetime of the process,
// matching the "no cancellation" guarantee the rest of the engine
// depends on.
func (s *Scheduler) Defer(ev event.Event, task Task) {
	seq := s.seq.Add(1)
	now := time.Now()

	s.mu.Lock()
	s.heap.AddItem(seq, seq)
	s.mu.Unlock()
	s.deferred.Inc()

	go func() {
		ev.Wait()
		s.ready.Push(&pending{seq: seq, enqueued: now, task: task})
	}()
}

func (s *Scheduler) drain() {
	for p := range s.ready.Recv() {
		s.mu.Lock()
		s.heap.RemoveByKey(p.seq)
		s.mu.Unlock()

		s.latency.Update(time.Since(p.enqueued))
		s.completed.Inc()
		p.task()
	}
}

// Outstanding reports how many defers are registered but have not yet
// fired, and the registration sequence of the oldest one.
func (s *Scheduler) Outstanding() (count int, oldestSeq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count = s.heap.Len()
	oldest, exists := s.heap.Peek()
	if !exists {
		return count, 0, false
	}
	return count, oldest.Key, true
}

// MeanLatency reports the mean time between Defer and task execution
// observed so far.
func (s *Scheduler) MeanLatency() time.Duration {
	return time.Duration(s.latency.Mean())
}

// WriteMetrics writes this scheduler's Prometheus-format metrics to w.
func (s *Scheduler) WriteMetrics(w io.Writer) {
	s.metrics.WritePrometheus(w)
}

// Close stops accepting new completions into the drain loop once every
// already-queued completion has been delivered. It does not and cannot
// stop waiter goroutines blocked on events that never fire.
func (s *Scheduler) Close() {
	s.ready.Close()
}
