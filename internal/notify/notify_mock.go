package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/wb-go/wbf/retry"
)

// MOCK SUBSCRIBER

type fakeSubscriber struct {
	id   string
	fail bool

	mu  sync.Mutex
	got []string
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(ctx context.Context, text string) error {
	if f.fail {
		return errors.New("connection reset")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, text)
	return nil
}

func (f *fakeSubscriber) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

// MOCK REPOSITORY - in-memory log

type memMessageRepo struct {
	mu        sync.Mutex
	nextID    int64
	messages  []model.Message
	createErr error
	listErr   error
}

func (m *memMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	msg.ID = m.nextID
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memMessageRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	res := make([]model.Message, 0)
	for _, msg := range m.messages {
		if msg.ProjectID == projectID {
			res = append(res, msg)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Timestamp.Equal(res[j].Timestamp) {
			return res[i].ID < res[j].ID
		}
		return res[i].Timestamp.Before(res[j].Timestamp)
	})
	return res, nil
}

func (m *memMessageRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// MOCK PUBLISHER

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, s, key, v)
}
