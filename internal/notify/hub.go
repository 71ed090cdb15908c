// Package notify provides the per-project subscriber registry that persists and fans out processing messages
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/mwlogger"
)

// Subscriber - живое подключение клиента, привязанное к одному проекту.
// Send is called under the project lock and must not wait on the client.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, text string) error
}

type MessageRepo interface {
	Create(ctx context.Context, m *model.Message) error
	ListByProject(ctx context.Context, projectID int64) ([]model.Message, error)
}

// Hub keeps subscribers grouped by project. Each project has its own room lock:
// connect+replay and persist+deliver for one project never interleave, different projects never wait on each other.
type Hub struct {
	repo   MessageRepo
	events *EventSink
	now    func() time.Time

	mu     sync.Mutex // guards rooms and lastTS
	rooms  map[int64]*room
	lastTS time.Time
}

type room struct {
	mu     sync.Mutex
	subs   []Subscriber
	closed bool // set once the room is dropped from the registry
}

func NewHub(repo MessageRepo, events *EventSink) *Hub {
	return &Hub{
		repo:   repo,
		events: events,
		now:    time.Now,
		rooms:  make(map[int64]*room),
	}
}

// Connect registers sub under projectID and replays the project's full log to it before any live message
func (h *Hub) Connect(ctx context.Context, sub Subscriber, projectID int64) error {
	r := h.acquire(projectID)
	defer h.release(projectID, r)

	r.subs = append(r.subs, sub)

	history, err := h.repo.ListByProject(ctx, projectID)
	if err != nil {
		r.remove(sub.ID())
		return fmt.Errorf("failed to load history of project %d: %w", projectID, err)
	}

	for _, m := range history {
		if err := sub.Send(ctx, m.Text); err != nil {
			r.remove(sub.ID())
			return fmt.Errorf("failed to replay message %d to subscriber %s: %w", m.ID, sub.ID(), err)
		}
	}
	return nil
}

// Disconnect removes sub; a project left without subscribers is dropped from the registry
func (h *Hub) Disconnect(sub Subscriber, projectID int64) {
	h.mu.Lock()
	r, ok := h.rooms[projectID]
	h.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.remove(sub.ID())
	h.release(projectID, r)
}

// Broadcast persists the message and only then delivers it to every subscriber of the project in registration order.
// A failed delivery is logged and skipped.
func (h *Hub) Broadcast(ctx context.Context, text string, projectID, imageID int64) (*model.Message, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	r := h.acquire(projectID)

	msg := &model.Message{
		ProjectID: projectID,
		ImageID:   imageID,
		Text:      text,
		Timestamp: h.stamp(),
	}
	if err := h.repo.Create(ctx, msg); err != nil {
		h.release(projectID, r)
		return nil, fmt.Errorf("failed to persist message for project %d: %w", projectID, err)
	}

	for _, sub := range r.subs {
		if err := sub.Send(ctx, text); err != nil {
			logger.Warn().Err(err).Str("subscriber", sub.ID()).Int64("message_id", msg.ID).Msg("Failed to deliver message to subscriber")
		}
	}
	h.release(projectID, r)

	h.events.Publish(ctx, msg)
	return msg, nil
}

// SendDirect delivers text to one subscriber only, nothing is persisted
func (h *Hub) SendDirect(ctx context.Context, text string, sub Subscriber) error {
	return sub.Send(ctx, text)
}

// Count returns the number of live subscribers of the project
func (h *Hub) Count(projectID int64) int {
	h.mu.Lock()
	r, ok := h.rooms[projectID]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// acquire returns the locked room of the project, creating it if needed
func (h *Hub) acquire(projectID int64) *room {
	for {
		h.mu.Lock()
		r, ok := h.rooms[projectID]
		if !ok {
			r = &room{}
			h.rooms[projectID] = r
		}
		h.mu.Unlock()

		r.mu.Lock()
		if !r.closed {
			return r
		}
		// room was dropped between lookup and lock - take a fresh one
		r.mu.Unlock()
	}
}

// release drops an empty room from the registry and unlocks it
func (h *Hub) release(projectID int64, r *room) {
	if len(r.subs) == 0 {
		h.mu.Lock()
		if h.rooms[projectID] == r {
			delete(h.rooms, projectID)
		}
		h.mu.Unlock()
		r.closed = true
	}
	r.mu.Unlock()
}

// stamp hands out strictly increasing timestamps at Postgres precision
func (h *Hub) stamp() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.now().UTC().Truncate(time.Microsecond)
	if !t.After(h.lastTS) {
		t = h.lastTS.Add(time.Microsecond)
	}
	h.lastTS = t
	return t
}

func (r *room) remove(id string) {
	for i, s := range r.subs {
		if s.ID() == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}
