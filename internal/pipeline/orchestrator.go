// Package pipeline drives one image through its renditions and owns the image state machine after upload
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/mwlogger"
)

type ImageRepo interface {
	Get(ctx context.Context, id int64) (*model.Image, error)
	UpdateState(ctx context.Context, id int64, from, to model.State) error
	Complete(ctx context.Context, id int64, urls model.RenditionURLs) error
}

type ImageStore interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// Notifier - рассылка прогресса подписчикам проекта (NotificationHub)
type Notifier interface {
	Broadcast(ctx context.Context, text string, projectID, imageID int64) (*model.Message, error)
}

// ResizeFunc matches imageproc.Resize
type ResizeFunc func(data []byte, maxW, maxH int, format model.Format) ([]byte, error)

// Task - всё, что нужно одному прогону: сырые байты оригинала не перечитываются из хранилища
type Task struct {
	ImageID  int64
	Filename string
	Data     []byte
	Format   model.Format
}

// Outcome is the explicit result of one run.
// Stage names the step that failed, Rendition is set when the failure happened inside a rendition.
type Outcome struct {
	ImageID   int64
	State     model.State
	Stage     string
	Rendition string
	Err       error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

const (
	StageFetch    = "fetch"
	StageStart    = "start"
	StageResize   = "resize"
	StageStore    = "store"
	StageURL      = "url"
	StageNotify   = "notify"
	StageComplete = "complete"
	StageFinish   = "finish"
)

type Orchestrator struct {
	repo   ImageRepo
	store  ImageStore
	resize ResizeFunc
	hub    Notifier
}

func NewOrchestrator(repo ImageRepo, store ImageStore, resize ResizeFunc, hub Notifier) *Orchestrator {
	return &Orchestrator{repo: repo, store: store, resize: resize, hub: hub}
}

// Run processes all renditions of one image sequentially and commits the result.
// On any failure the image is moved to error, remaining renditions are skipped and no completion message is sent.
func (o *Orchestrator) Run(ctx context.Context, task Task) Outcome {
	res := Outcome{ImageID: task.ImageID}

	// перечитываем запись из базы - переданной копии не доверяем
	img, err := o.repo.Get(ctx, task.ImageID)
	if err != nil {
		res.Stage, res.Err = StageFetch, fmt.Errorf("failed to fetch image %d: %w", task.ImageID, err)
		return res
	}
	res.State = img.State

	if _, err := img.State.To(model.StateProcessing); err != nil {
		res.Stage, res.Err = StageStart, err
		return res
	}
	if err := o.repo.UpdateState(ctx, img.ID, img.State, model.StateProcessing); err != nil {
		res.Stage, res.Err = StageStart, fmt.Errorf("failed to move image %d to processing: %w", img.ID, err)
		// состояние могло смениться конкурентно - тогда трогать запись нельзя
		if img.State == model.StateUploaded && !errors.Is(err, model.ErrStaleState) {
			res.State = o.fail(ctx, img.ID, model.StateUploaded)
		}
		return res
	}
	img.State = model.StateProcessing
	res.State = img.State

	contentType := model.ContentTypes[task.Format]
	urls := make(model.RenditionURLs, len(model.Renditions))

	for _, r := range model.Renditions {
		stage, err := o.renderOne(ctx, img, task, r, contentType, urls)
		if err != nil {
			res.Stage, res.Rendition, res.Err = stage, r.Name, err
			res.State = o.fail(ctx, img.ID, model.StateProcessing)
			return res
		}
	}

	if err := img.ApplyRenditions(urls); err != nil {
		res.Stage, res.Err = StageComplete, err
		res.State = o.fail(ctx, img.ID, model.StateProcessing)
		return res
	}
	if err := o.repo.Complete(ctx, img.ID, urls); err != nil {
		// рендишены уже лежат в хранилище и не удаляются; если база недоступна, запись так и останется в processing
		res.Stage, res.Err = StageComplete, fmt.Errorf("failed to commit renditions of image %d: %w", img.ID, err)
		res.State = o.fail(ctx, img.ID, model.StateProcessing)
		return res
	}
	res.State = model.StateDone

	if _, err := o.hub.Broadcast(ctx, model.CompletionText(img.ID, img.ProjectID), img.ProjectID, img.ID); err != nil {
		// картинка уже done - статус не трогаем, но и успехом прогон не считаем
		res.Stage, res.Err = StageFinish, fmt.Errorf("failed to emit completion message: %w", err)
	}
	return res
}

func (o *Orchestrator) renderOne(ctx context.Context, img *model.Image, task Task, r model.Rendition, contentType string, urls model.RenditionURLs) (string, error) {
	out, err := o.resize(task.Data, r.Width, r.Height, task.Format)
	if err != nil {
		return StageResize, fmt.Errorf("failed to resize to %s: %w", r.Size(), err)
	}

	key := r.Key(img.Filename)
	if err := o.store.Put(ctx, key, int64(len(out)), contentType, bytes.NewReader(out)); err != nil {
		return StageStore, fmt.Errorf("failed to store rendition %q: %w", key, err)
	}

	url, err := o.store.PresignedURL(ctx, key)
	if err != nil {
		return StageURL, fmt.Errorf("failed to get URL of rendition %q: %w", key, err)
	}
	urls[r.Name] = url

	if _, err := o.hub.Broadcast(ctx, model.ProgressText(r, url), img.ProjectID, img.ID); err != nil {
		return StageNotify, fmt.Errorf("failed to emit progress of %s: %w", r.Name, err)
	}
	return "", nil
}

// fail moves the image to error and returns the state the row is known to be in
func (o *Orchestrator) fail(ctx context.Context, id int64, from model.State) model.State {
	if err := o.repo.UpdateState(ctx, id, from, model.StateError); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Int64("image_id", id).Str("from", string(from)).
			Msg("Failed to move image to error state")
		return from
	}
	return model.StateError
}
