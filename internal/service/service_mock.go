package service

import (
	"context"
	"io"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/pipeline"
)

// MOCK RESPOSITORY

type mockRepo struct {
	createFn        func(ctx context.Context, img *model.Image) error
	getFn           func(ctx context.Context, id int64) (*model.Image, error)
	existsByNameFn  func(ctx context.Context, projectID int64, filename string) (bool, error)
	listByProjectFn func(ctx context.Context, projectID int64) ([]model.Image, error)
	updateStateFn   func(ctx context.Context, id int64, from, to model.State) error
	completeFn      func(ctx context.Context, id int64, urls model.RenditionURLs) error
}

func (m *mockRepo) Create(ctx context.Context, img *model.Image) error {
	return m.createFn(ctx, img)
}

func (m *mockRepo) Get(ctx context.Context, id int64) (*model.Image, error) {
	return m.getFn(ctx, id)
}

func (m *mockRepo) ExistsByName(ctx context.Context, projectID int64, filename string) (bool, error) {
	return m.existsByNameFn(ctx, projectID, filename)
}

func (m *mockRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Image, error) {
	return m.listByProjectFn(ctx, projectID)
}

func (m *mockRepo) UpdateState(ctx context.Context, id int64, from, to model.State) error {
	return m.updateStateFn(ctx, id, from, to)
}

func (m *mockRepo) Complete(ctx context.Context, id int64, urls model.RenditionURLs) error {
	return m.completeFn(ctx, id, urls)
}

type mockMessageRepo struct {
	listByProjectFn func(ctx context.Context, projectID int64) ([]model.Message, error)
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	return nil
}

func (m *mockMessageRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Message, error) {
	return m.listByProjectFn(ctx, projectID)
}

// MOCK STORAGE

type mockStorage struct {
	putFn func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	urlFn func(ctx context.Context, key string) (string, error)
}

func (m *mockStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStorage) PresignedURL(ctx context.Context, key string) (string, error) {
	return m.urlFn(ctx, key)
}

// MOCK SCHEDULER

type mockScheduler struct {
	submitFn func(ctx context.Context, task pipeline.Task) error
}

func (m *mockScheduler) Submit(ctx context.Context, task pipeline.Task) error {
	return m.submitFn(ctx, task)
}
