package services

import "sync"

const (
	historyLimit     = 200
	subscriberBuffer = 64
)

// statusHub fans progress lines out to subscribers. Slow subscribers lose lines
// instead of blocking the job.
type statusHub struct {
	mu      sync.Mutex
	subs    map[chan string]struct{}
	history []string
	limit   int
	closed  bool
}

func newStatusHub(limit int) *statusHub {
	return &statusHub{
		subs:  make(map[chan string]struct{}),
		limit: limit,
	}
}

func (h *statusHub) Publish(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.history = append(h.history, msg)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe replays buffered history and then delivers live lines. The channel is
// closed when the job finishes or the returned func is called.
func (h *statusHub) Subscribe() (<-chan string, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan string, subscriberBuffer+len(h.history))
	for _, msg := range h.history {
		ch <- msg
	}
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *statusHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
