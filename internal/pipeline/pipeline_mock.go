package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
)

// memRepo keeps a single image row and mirrors the compare-and-set semantics of the Postgres repo
type memRepo struct {
	mu  sync.Mutex
	img model.Image

	getErr      error
	updateErr   error
	completeErr error
	history     []model.State
}

func newMemRepo(img model.Image) *memRepo {
	return &memRepo{img: img, history: []model.State{img.State}}
}

func (m *memRepo) Get(ctx context.Context, id int64) (*model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if id != m.img.ID {
		return nil, model.ErrImageNotFound
	}
	cp := m.img
	return &cp, nil
}

func (m *memRepo) UpdateState(ctx context.Context, id int64, from, to model.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, err := from.To(to); err != nil {
		return err
	}
	if m.img.State != from {
		return model.ErrStaleState
	}
	m.img.State = to
	m.history = append(m.history, to)
	return nil
}

func (m *memRepo) Complete(ctx context.Context, id int64, urls model.RenditionURLs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	if m.img.State != model.StateProcessing {
		return model.ErrStaleState
	}
	if err := m.img.ApplyRenditions(urls); err != nil {
		return err
	}
	m.history = append(m.history, m.img.State)
	return nil
}

func (m *memRepo) snapshot() (model.Image, []model.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.img, append([]model.State(nil), m.history...)
}

//----------------------------------

type mockStore struct {
	putFn  func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	urlFn  func(ctx context.Context, key string) (string, error)
	putted []string
}

func (m *mockStore) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	m.putted = append(m.putted, key)
	if m.putFn == nil {
		return nil
	}
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStore) PresignedURL(ctx context.Context, key string) (string, error) {
	if m.urlFn == nil {
		return "http://minio/images/" + key, nil
	}
	return m.urlFn(ctx, key)
}

//----------------------------------

type recordingNotifier struct {
	texts []string
	err   error
}

func (n *recordingNotifier) Broadcast(ctx context.Context, text string, projectID, imageID int64) (*model.Message, error) {
	if n.err != nil {
		return nil, n.err
	}
	n.texts = append(n.texts, text)
	return &model.Message{ID: int64(len(n.texts)), ProjectID: projectID, ImageID: imageID, Text: text}, nil
}
