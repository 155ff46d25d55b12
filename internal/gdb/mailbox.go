package gdb

import "sync"

// mailbox is an unbounded per-subscriber queue. put never blocks, so a slow
// subscriber cannot stall the goroutines that publish into it.
type mailbox struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	signal chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

func newMailbox() *mailbox {
	m := &mailbox{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// put enqueues ev. Events put after close are dropped.
func (m *mailbox) put(ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	m.wake()
}

// close lets the queue drain and then closes out
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

// cancel stops delivery immediately and discards anything queued
func (m *mailbox) cancel() {
	m.once.Do(func() { close(m.done) })
}

func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	defer close(m.out)
	for {
		select {
		case <-m.done:
			return
		default:
		}

		m.mu.Lock()
		if len(m.queue) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- ev:
		case <-m.done:
			return
		}
	}
}
