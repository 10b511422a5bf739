// Package broadcast fans deployment log lines out to live HTTP
// subscribers while keeping a replayable backlog per deployment.
package broadcast

import (
	"sync"
	"time"

	"infrakt.dev/common"
)

// CleanupDelay is how long finished deployment state is retained so
// late subscribers still get a full replay.
const CleanupDelay = 300 * time.Second

// Line is one broadcast item. A nil Line on a subscriber channel is
// the end-of-stream sentinel.
type Line = *string

type subscriber struct {
	out  chan Line
	done chan struct{}
	mu   sync.Mutex
	cond *sync.Cond
	// queue decouples the publisher from the consumer: Publish appends
	// here and never blocks, the pump goroutine drains into out.
	queue  []Line
	closed bool
}

func newSubscriber() *subscriber {
	s := &subscriber{out: make(chan Line), done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

func (s *subscriber) enqueue(l Line) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, l)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		select {
		case s.out <- item:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()
}

type entry struct {
	mu          sync.Mutex
	backlog     []string
	finished    bool
	subscribers map[*subscriber]struct{}
}

// Broadcaster is the in-memory log store keyed by deployment id.
type Broadcaster struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{entries: map[int64]*entry{}}
}

func (b *Broadcaster) get(id int64) *entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries[id]
}

// Register creates the entry for a deployment. It must run before the
// background worker starts publishing.
func (b *Broadcaster) Register(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; !ok {
		b.entries[id] = &entry{subscribers: map[*subscriber]struct{}{}}
	}
}

// Publish appends a line to the backlog and enqueues it on every live
// subscriber without ever blocking the publisher. Unregistered ids are
// a no-op.
func (b *Broadcaster) Publish(id int64, line string) {
	e := b.get(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.backlog = append(e.backlog, line)
	for s := range e.subscribers {
		l := line
		s.enqueue(&l)
	}
}

// Finish marks the deployment done and delivers the sentinel to every
// subscriber.
func (b *Broadcaster) Finish(id int64) {
	e := b.get(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	for s := range e.subscribers {
		s.enqueue(nil)
	}
}

// Subscribe returns a snapshot of the backlog plus a channel that
// yields every line published after the snapshot, then a nil sentinel.
func (b *Broadcaster) Subscribe(id int64) ([]string, <-chan Line, error) {
	e := b.get(id)
	if e == nil {
		return nil, nil, common.NotFoundf("deployment %d has no live log stream", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := append([]string(nil), e.backlog...)
	s := newSubscriber()
	e.subscribers[s] = struct{}{}
	if e.finished {
		s.enqueue(nil)
	}
	return snapshot, s.out, nil
}

// Unsubscribe detaches a channel obtained from Subscribe. Idempotent.
func (b *Broadcaster) Unsubscribe(id int64, ch <-chan Line) {
	e := b.get(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for s := range e.subscribers {
		if s.out == ch {
			delete(e.subscribers, s)
			s.stop()
			return
		}
	}
}

// Cleanup drops all state for a deployment and stops its pumps.
func (b *Broadcaster) Cleanup(id int64) {
	b.mu.Lock()
	e := b.entries[id]
	delete(b.entries, id)
	b.mu.Unlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for s := range e.subscribers {
		s.stop()
	}
	e.subscribers = map[*subscriber]struct{}{}
}

// CleanupAfter schedules Cleanup once the retention window passes.
func (b *Broadcaster) CleanupAfter(id int64, delay time.Duration) {
	time.AfterFunc(delay, func() { b.Cleanup(id) })
}

// Backlog returns the current backlog snapshot, or nil for unknown
// ids.
func (b *Broadcaster) Backlog(id int64) []string {
	e := b.get(id)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.backlog...)
}

// Finished reports whether Finish has been called for id.
func (b *Broadcaster) Finished(id int64) bool {
	e := b.get(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}
