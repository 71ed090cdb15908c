package main

import (
	"context"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
)

type ImageAPIService interface {
	Ingest(ctx context.Context, data *model.IngestData) (*model.ImageHandle, error)
	ListProjectImages(ctx context.Context, projectID int64) ([]model.Image, error)
	GetImage(ctx context.Context, id int64) (*model.Image, error)
	ListProjectMessages(ctx context.Context, projectID int64) ([]model.Message, error)
}
