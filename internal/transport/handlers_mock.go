package transport

import (
	"context"
	"sync"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/gin-gonic/gin"
)

type mockImageService struct {
	ingestFn       func(ctx context.Context, d *model.IngestData) (*model.ImageHandle, error)
	listImagesFn   func(ctx context.Context, projectID int64) ([]model.Image, error)
	getImageFn     func(ctx context.Context, id int64) (*model.Image, error)
	listMessagesFn func(ctx context.Context, projectID int64) ([]model.Message, error)
}

func (m *mockImageService) Ingest(ctx context.Context, d *model.IngestData) (*model.ImageHandle, error) {
	return m.ingestFn(ctx, d)
}

func (m *mockImageService) ListProjectImages(ctx context.Context, projectID int64) ([]model.Image, error) {
	return m.listImagesFn(ctx, projectID)
}

func (m *mockImageService) GetImage(ctx context.Context, id int64) (*model.Image, error) {
	return m.getImageFn(ctx, id)
}

func (m *mockImageService) ListProjectMessages(ctx context.Context, projectID int64) ([]model.Message, error) {
	return m.listMessagesFn(ctx, projectID)
}

// memMessages - in-memory log for running the real notify.Hub behind the websocket route
type memMessages struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (m *memMessages) Create(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = int64(len(m.msgs) + 1)
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memMessages) ListByProject(ctx context.Context, projectID int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Message, 0)
	for _, msg := range m.msgs {
		if msg.ProjectID == projectID {
			res = append(res, msg)
		}
	}
	return res, nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

func init() {
	gin.SetMode(gin.TestMode)
}
