package outputcache

import (
	"context"
	"fmt"
	"sync"
)

// Dispatcher coalesces concurrent work on the same key onto a single
// in-flight computation. For a given key at most one factory invocation is in
// progress at any moment; every caller arriving while it runs receives the
// same result, including failures.
//
// Callers may abandon their wait through their own context; the factory keeps
// running for the remaining waiters and is not tied to any single caller's
// cancellation.
type Dispatcher struct {
	mu    sync.Mutex
	tasks map[string]*dispatcherTask
}

// dispatcherTask is the shared in-flight computation for a key. It exists
// only between the first caller's arrival and result publication.
type dispatcherTask struct {
	done  chan struct{}
	entry *Entry
	err   error
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{tasks: make(map[string]*dispatcherTask)}
}

// Schedule returns the result of factory() for key, guaranteeing that only
// one factory runs per key at a time. The executed result reports whether
// this caller ran the factory itself; callers that arrived while another
// invocation was in flight receive executed == false together with the shared
// result.
//
// If ctx is cancelled while waiting on another caller's invocation, Schedule
// returns ctx.Err(); the shared invocation continues unaffected.
func (d *Dispatcher) Schedule(ctx context.Context, key string, factory func() (*Entry, error)) (entry *Entry, executed bool, err error) {
	d.mu.Lock()
	if t, ok := d.tasks[key]; ok {
		d.mu.Unlock()
		select {
		case <-t.done:
			return t.entry, false, t.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	t := &dispatcherTask{done: make(chan struct{})}
	d.tasks[key] = t
	d.mu.Unlock()

	entry, err = d.run(key, t, factory)
	return entry, true, err
}

// run executes the factory as the owner of the task. The task is removed
// from the map before the result is published so that late arrivals start a
// fresh invocation instead of piggybacking on a result that is about to be
// released. A factory panic is published to waiters as an error and then
// re-raised for the owner.
func (d *Dispatcher) run(key string, t *dispatcherTask, factory func() (*Entry, error)) (entry *Entry, err error) {
	defer func() {
		d.mu.Lock()
		delete(d.tasks, key)
		d.mu.Unlock()

		if p := recover(); p != nil {
			t.err = fmt.Errorf("outputcache: shared execution panicked: %v", p)
			close(t.done)
			panic(p)
		}
		t.entry, t.err = entry, err
		close(t.done)
	}()
	return factory()
}
