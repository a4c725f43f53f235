// ABOUTME: Channel hub: the bounded queues and shutdown flag shared by all workers
// ABOUTME: Envelopes carry correlation ids so transports can match replies to requests
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/media"
	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/util"
)

// DefaultCapacity is the default buffer size of every hub channel
const DefaultCapacity = 100

// Payload is either text or media
type Payload struct {
	Text  string
	Media *media.Media
}

// TextPayload wraps plain text
func TextPayload(text string) Payload {
	return Payload{Text: text}
}

// IsMedia reports whether the payload carries an attachment
func (p Payload) IsMedia() bool {
	return p.Media != nil
}

// Request is one inbound turn
type Request struct {
	CorrelationID uuid.UUID
	UserID        uuid.UUID
	Payload       Payload
}

// Response is the reply to the request with the same CorrelationID
type Response struct {
	CorrelationID uuid.UUID
	Text          string
}

// ExtractTask asks the extract pool to process one summary
type ExtractTask struct {
	SummaryID uuid.UUID
}

// AuthResult is the reply to an AuthRequest
type AuthResult struct {
	UserID uuid.UUID
	Err    error
}

// AuthRequest resolves an external identity to an internal user id.
// Reply has capacity 1 so the worker never blocks on it.
type AuthRequest struct {
	Provider    string
	ExternalID  string
	DisplayName string
	Reply       chan AuthResult
}

// NewAuthRequest builds a request with a single-shot reply slot
func NewAuthRequest(provider, externalID, displayName string) AuthRequest {
	return AuthRequest{
		Provider:    provider,
		ExternalID:  externalID,
		DisplayName: displayName,
		Reply:       make(chan AuthResult, 1),
	}
}

// ShutdownFlag is a latch: once set it stays set
type ShutdownFlag struct {
	once sync.Once
	done chan struct{}
}

// NewShutdownFlag returns an unset flag
func NewShutdownFlag() *ShutdownFlag {
	return &ShutdownFlag{done: make(chan struct{})}
}

// Set latches the flag. Safe to call repeatedly.
func (f *ShutdownFlag) Set() {
	f.once.Do(func() { close(f.done) })
}

// IsSet reports whether Set has been called
func (f *ShutdownFlag) IsSet() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed once the flag is set
func (f *ShutdownFlag) Done() <-chan struct{} {
	return f.done
}

// Hub holds the bounded queues connecting transports and worker pools
type Hub struct {
	Requests     chan Request
	Responses    chan Response
	Extract      chan ExtractTask
	AuthRequests chan AuthRequest
	Shutdown     *ShutdownFlag
}

// NewHub creates a hub whose channels each buffer capacity items
func NewHub(capacity int) *Hub {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Hub{
		Requests:     make(chan Request, capacity),
		Responses:    make(chan Response, capacity),
		Extract:      make(chan ExtractTask, capacity),
		AuthRequests: make(chan AuthRequest, capacity),
		Shutdown:     NewShutdownFlag(),
	}
}

// Submit registers a correlation id with pending and enqueues the request.
// The returned channel yields the response text.
func (h *Hub) Submit(ctx context.Context, pending *Pending, userID uuid.UUID, payload Payload) (uuid.UUID, <-chan string, error) {
	id := util.NewID()
	slot := pending.Register(id)

	select {
	case h.Requests <- Request{CorrelationID: id, UserID: userID, Payload: payload}:
		metrics.MessagesTotal.WithLabelValues("requests", "in").Inc()
		return id, slot, nil
	case <-ctx.Done():
		pending.Forget(id)
		return uuid.Nil, nil, ctx.Err()
	case <-h.Shutdown.Done():
		pending.Forget(id)
		return uuid.Nil, nil, fmt.Errorf("runtime is shutting down")
	}
}

// Ask submits a request and waits for its response
func (h *Hub) Ask(ctx context.Context, pending *Pending, userID uuid.UUID, payload Payload) (string, error) {
	id, slot, err := h.Submit(ctx, pending, userID, payload)
	if err != nil {
		return "", err
	}
	select {
	case text := <-slot:
		return text, nil
	case <-ctx.Done():
		pending.Forget(id)
		return "", ctx.Err()
	}
}

// ResolveUser sends an auth request and waits for the user id.
// A zero timeout waits until ctx is done.
func (h *Hub) ResolveUser(ctx context.Context, provider, externalID, displayName string, timeout time.Duration) (uuid.UUID, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := NewAuthRequest(provider, externalID, displayName)
	select {
	case h.AuthRequests <- req:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}

	select {
	case res := <-req.Reply:
		return res.UserID, res.Err
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}
