// Package service provides business-logic for the app
package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/mwlogger"
	"github.com/UnendingLoop/ImagePipeline/internal/pipeline"
	"github.com/UnendingLoop/ImagePipeline/internal/repository"
)

// ImageService - приём оригиналов и чтение состояния проектов
type ImageService struct {
	repo      repository.ImageRepo
	messages  repository.MessageRepo
	storage   ImageStorage
	scheduler TaskScheduler
}

func NewImageService(imgRepo repository.ImageRepo, msgRepo repository.MessageRepo, strg ImageStorage, sched TaskScheduler) *ImageService {
	return &ImageService{
		repo:      imgRepo,
		messages:  msgRepo,
		storage:   strg,
		scheduler: sched,
	}
}

// ImageStorage - контракт для работы с хранилищем
type ImageStorage interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// TaskScheduler - контракт фонового исполнителя (worker.Pool)
type TaskScheduler interface {
	Submit(ctx context.Context, task pipeline.Task) error
}

// Ingest stores the original, registers the image as uploaded and schedules exactly one processing run.
// It returns as soon as the run is queued.
func (c ImageService) Ingest(ctx context.Context, data *model.IngestData) (*model.ImageHandle, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	// Валидируем до любых записей
	format, err := validateIngest(data)
	if err != nil {
		return nil, err
	}

	// оригинал лежит под ключом = имени файла: дубликат не должен его перезаписать
	exists, err := c.repo.ExistsByName(ctx, data.ProjectID, data.Filename)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to check image uniqueness in DB")
		return nil, model.ErrCommon500
	}
	if exists {
		return nil, model.ErrConflict
	}

	// кладем в хранилище оригинал
	if err := c.storage.Put(ctx, data.Filename, int64(len(data.Data)), model.ContentTypes[format], bytes.NewReader(data.Data)); err != nil {
		logger.Error().Err(err).Str("filename", data.Filename).Msg("Failed to save original in Storage")
		return nil, model.ErrCommon500
	}
	url, err := c.storage.PresignedURL(ctx, data.Filename)
	if err != nil {
		logger.Error().Err(err).Str("filename", data.Filename).Msg("Failed to get URL of original")
		return nil, model.ErrCommon500
	}

	// шлем в базу
	now := time.Now().UTC()
	img := &model.Image{
		Filename:    data.Filename,
		ProjectID:   data.ProjectID,
		State:       model.StateUploaded,
		OriginalURL: url,
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}
	if err := c.repo.Create(ctx, img); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, model.ErrConflict // 409
		}
		logger.Error().Err(err).Msg("Failed to create image in DB")
		return nil, model.ErrCommon500
	}

	// ставим ровно один прогон пайплайна, байты передаем владельцу задачи
	task := pipeline.Task{ImageID: img.ID, Filename: img.Filename, Data: data.Data, Format: format}
	if err := c.scheduler.Submit(ctx, task); err != nil {
		logger.Error().Err(err).Int64("image_id", img.ID).Msg("Failed to schedule image processing")
		if uErr := c.repo.UpdateState(ctx, img.ID, model.StateUploaded, model.StateError); uErr != nil {
			logger.Error().Err(uErr).Int64("image_id", img.ID).Msg("Failed to mark unscheduled image as error")
		}
		return nil, model.ErrCommon500
	}

	return &model.ImageHandle{ImageID: img.ID, OriginalURL: img.OriginalURL}, nil
}

func (c ImageService) ListProjectImages(ctx context.Context, projectID int64) ([]model.Image, error) {
	if projectID <= 0 {
		return nil, model.ErrIncorrectProject
	}

	res, err := c.repo.ListByProject(ctx, projectID)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Int64("project_id", projectID).Msg("Failed to fetch project images from DB")
		return nil, model.ErrCommon500
	}
	return res, nil
}

func (c ImageService) GetImage(ctx context.Context, id int64) (*model.Image, error) {
	if id <= 0 {
		return nil, model.ErrIncorrectID
	}

	res, err := c.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrImageNotFound) {
			return nil, err // 404
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Int64("image_id", id).Msg("Failed to fetch image from DB")
		return nil, model.ErrCommon500
	}
	return res, nil
}

// ListProjectMessages returns the durable log of a project in replay order
func (c ImageService) ListProjectMessages(ctx context.Context, projectID int64) ([]model.Message, error) {
	if projectID <= 0 {
		return nil, model.ErrIncorrectProject
	}

	res, err := c.messages.ListByProject(ctx, projectID)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Int64("project_id", projectID).Msg("Failed to fetch project messages from DB")
		return nil, model.ErrCommon500
	}
	return res, nil
}
