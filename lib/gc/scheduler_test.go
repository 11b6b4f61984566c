package gc

import (
	"sync"
	"testing"
	"time"

	"github.com/vkolb/viewmesh/lib/event"
)

func TestDeferRunsTaskOnlyAfterEventFires(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	src := event.NewSource()
	var ran sync.WaitGroup
	ran.Add(1)

	fired := make(chan struct{})
	s.Defer(src.Event(), func() {
		close(fired)
		ran.Done()
	})

	select {
	case <-fired:
		t.Fatalf("task ran before its event fired")
	case <-time.After(20 * time.Millisecond):
	}

	src.Trigger()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("task did not run after its event fired")
	}
	ran.Wait()
}

func TestOutstandingTracksPendingDefers(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	src := event.NewSource()
	done := make(chan struct{})
	s.Defer(src.Event(), func() { close(done) })

	count, _, ok := s.Outstanding()
	if !ok || count != 1 {
		t.Fatalf("outstanding = (%d,%v), want (1,true)", count, ok)
	}

	src.Trigger()
	<-done

	// RemoveByKey happens before the task runs, so by the time done is
	// closed the heap entry should already be gone.
	for i := 0; i < 100; i++ {
		count, _, ok = s.Outstanding()
		if !ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if ok {
		t.Fatalf("expected outstanding defer to clear once its task ran, count=%d", count)
	}
}

func TestMultipleDefersAllRun(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	srcs := make([]*event.Source, n)
	for i := 0; i < n; i++ {
		srcs[i] = event.NewSource()
		s.Defer(srcs[i].Event(), func() { wg.Done() })
	}
	for _, src := range srcs {
		src.Trigger()
	}
	wg.Wait()
}
