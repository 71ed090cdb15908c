// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/notify"
	"github.com/gorilla/websocket"
	"github.com/wb-go/wbf/ginext"
)

type ImageHandler struct {
	service   ImageService
	hub       Hub
	maxUpload int64
	upgrader  websocket.Upgrader
}

type ImageService interface {
	Ingest(ctx context.Context, data *model.IngestData) (*model.ImageHandle, error)
	ListProjectImages(ctx context.Context, projectID int64) ([]model.Image, error)
	GetImage(ctx context.Context, id int64) (*model.Image, error)
	ListProjectMessages(ctx context.Context, projectID int64) ([]model.Message, error)
}

// Hub - контракт реестра подписчиков (notify.Hub)
type Hub interface {
	Connect(ctx context.Context, sub notify.Subscriber, projectID int64) error
	Disconnect(sub notify.Subscriber, projectID int64)
	SendDirect(ctx context.Context, text string, sub notify.Subscriber) error
}

// NewImageHandler - maxUploadMB <= 0 means the default of 50 MB
func NewImageHandler(svc ImageService, hub Hub, maxUploadMB int64) *ImageHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &ImageHandler{
		service:   svc,
		hub:       hub,
		maxUpload: maxUploadMB << 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h ImageHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h ImageHandler) Root(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "everything works"})
}

func (h ImageHandler) UploadImage(ctx *ginext.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, h.maxUpload)
	if err := ctx.Request.ParseMultipartForm(32 << 20); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to read multipart body"})
		return
	}

	projectID, err := strconv.ParseInt(ctx.PostForm("project_id"), 10, 64)
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectProject.Error()})
		return
	}

	// парсинг исходника
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "file is required"})
		return
	}
	defer closeFileFlow(file)

	data, err := io.ReadAll(file)
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrEmptyUpload.Error()})
		return
	}

	// передаем в сервис
	res, err := h.service.Ingest(ctx.Request.Context(), &model.IngestData{
		ProjectID: projectID,
		Filename:  header.Filename,
		Data:      data,
	})
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h ImageHandler) ProjectImages(ctx *ginext.Context) {
	projectID, err := strconv.ParseInt(ctx.Param("projectId"), 10, 64)
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectProject.Error()})
		return
	}

	res, err := h.service.ListProjectImages(ctx.Request.Context(), projectID)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h ImageHandler) ProjectMessages(ctx *ginext.Context) {
	projectID, err := strconv.ParseInt(ctx.Param("projectId"), 10, 64)
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectProject.Error()})
		return
	}

	res, err := h.service.ListProjectMessages(ctx.Request.Context(), projectID)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h ImageHandler) GetImage(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectID.Error()})
		return
	}

	res, err := h.service.GetImage(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}
