package ui

import "sync"

// updateQueue forwards work from background goroutines to the UI goroutine
// through one drain goroutine. Post never blocks; after Close, posted work
// is dropped.
type updateQueue struct {
	sink func(func())

	mu      sync.Mutex
	pending []func()
	notify  chan struct{}
	done    chan struct{}
	closed  bool
}

func newUpdateQueue(sink func(func())) *updateQueue {
	q := &updateQueue{
		sink:   sink,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *updateQueue) Post(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Close drops pending work and stops the drain goroutine once its current
// item, if any, has been handed to the sink.
func (q *updateQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	close(q.done)
}

func (q *updateQueue) drain() {
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			fn, ok := q.next()
			if !ok {
				break
			}
			q.sink(fn)
		}
	}
}

func (q *updateQueue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return nil, false
	}
	fn := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return fn, true
}
