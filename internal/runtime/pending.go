// ABOUTME: Correlation of responses to waiting transport requests
// ABOUTME: Each transport owns a Pending map; Listen fans responses out to them
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/metrics"
)

// Pending maps correlation ids to single-shot response slots
type Pending struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan string
}

// NewPending returns an empty map
func NewPending() *Pending {
	return &Pending{slots: make(map[uuid.UUID]chan string)}
}

// Register creates the slot for id
func (p *Pending) Register(id uuid.UUID) <-chan string {
	slot := make(chan string, 1)
	p.mu.Lock()
	p.slots[id] = slot
	p.mu.Unlock()
	metrics.PendingRequests.Inc()
	return slot
}

// Resolve fulfils and removes the slot for id, reporting whether it existed
func (p *Pending) Resolve(id uuid.UUID, text string) bool {
	p.mu.Lock()
	slot, ok := p.slots[id]
	delete(p.slots, id)
	p.mu.Unlock()
	if !ok {
		return false
	}
	metrics.PendingRequests.Dec()
	slot <- text
	return true
}

// Forget drops the slot for id without fulfilling it
func (p *Pending) Forget(id uuid.UUID) {
	p.mu.Lock()
	_, ok := p.slots[id]
	delete(p.slots, id)
	p.mu.Unlock()
	if ok {
		metrics.PendingRequests.Dec()
	}
}

// Len returns the number of outstanding slots
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Listen drains responses and fulfils whichever Pending holds each id.
// Shutdown alone does not stop it: it returns once producersDone is closed
// (every worker has exited, so no more responses can arrive) and the
// channel has been drained, or when ctx is done. A nil producersDone keeps
// it running until ctx is done.
func Listen(ctx context.Context, responses <-chan Response, producersDone <-chan struct{}, pending ...*Pending) {
	logger := slog.Default().With("component", "listener")
	deliver := func(resp Response) {
		metrics.MessagesTotal.WithLabelValues("responses", "out").Inc()
		if !dispatch(resp, pending) {
			logger.Warn("no pending request for response", "correlation_id", resp.CorrelationID)
		}
	}

	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				return
			}
			deliver(resp)
		case <-producersDone:
			for {
				select {
				case resp, ok := <-responses:
					if !ok {
						return
					}
					deliver(resp)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func dispatch(resp Response, pending []*Pending) bool {
	for _, p := range pending {
		if p.Resolve(resp.CorrelationID, resp.Text) {
			return true
		}
	}
	return false
}
