// Package model provides data-structs for internal app-usage
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Image - загруженный оригинал и его состояние; ссылки на копии либо все заданы, либо все nil
type Image struct {
	ID          int64      `json:"id"`
	Filename    string     `json:"filename"`
	ProjectID   int64      `json:"project_id"`
	State       State      `json:"state"`
	OriginalURL string     `json:"original_url"`
	ThumbURL    *string    `json:"thumb_url"`
	BigThumbURL *string    `json:"big_thumb_url"`
	Big1920URL  *string    `json:"big_1920_url"`
	D2500URL    *string    `json:"d2500_url"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// HasRenditions reports whether all four rendition URLs are set
func (i *Image) HasRenditions() bool {
	return i.ThumbURL != nil && i.BigThumbURL != nil && i.Big1920URL != nil && i.D2500URL != nil
}

// ApplyRenditions copies collected URLs into the rendition fields and moves the image to done.
// Either all four fields are set or nothing is changed.
func (i *Image) ApplyRenditions(urls RenditionURLs) error {
	if !urls.Complete() {
		return fmt.Errorf("incomplete rendition set: %d of %d", len(urls), len(Renditions))
	}
	next, err := i.State.To(StateDone)
	if err != nil {
		return err
	}

	thumb, bigThumb, big1920, d2500 := urls[Thumb.Name], urls[BigThumb.Name], urls[Big1920.Name], urls[D2500.Name]
	i.ThumbURL, i.BigThumbURL, i.Big1920URL, i.D2500URL = &thumb, &bigThumb, &big1920, &d2500
	i.State = next
	return nil
}

// Message - запись журнала проекта, рассылается подписчикам и отдается при повторе истории
type Message struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	ImageID   int64     `json:"image_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageHandle - ответ на успешную загрузку оригинала
type ImageHandle struct {
	ImageID     int64  `json:"image_id"`
	OriginalURL string `json:"original_url"`
}

// IngestData - сырой ввод загрузки до валидации
type IngestData struct {
	ProjectID int64
	Filename  string
	Data      []byte
}

//--------------------

// Rendition - один производный размер оригинала
type Rendition struct {
	Name   string
	Width  int
	Height int
}

var (
	Thumb    = Rendition{Name: "thumb", Width: 150, Height: 120}
	BigThumb = Rendition{Name: "big_thumb", Width: 700, Height: 700}
	Big1920  = Rendition{Name: "big_1920", Width: 1920, Height: 1080}
	D2500    = Rendition{Name: "d2500", Width: 2500, Height: 2500}
)

// Renditions are processed strictly in this order
var Renditions = []Rendition{Thumb, BigThumb, Big1920, D2500}

// Key returns the object key of the rendition, e.g. thumb_cat.jpg
func (r Rendition) Key(filename string) string {
	return r.Name + "_" + filename
}

// Size formats the bounding box as WxH
func (r Rendition) Size() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

type RenditionURLs map[string]string

func (u RenditionURLs) Complete() bool {
	for _, r := range Renditions {
		if u[r.Name] == "" {
			return false
		}
	}
	return true
}

//--------------------

type Format string

const (
	FormatJPEG Format = "JPEG"
	FormatPNG  Format = "PNG"
	FormatTIFF Format = "TIFF"
	FormatSVG  Format = "SVG"
)

// allowedExt - допустимые расширения загружаемых файлов, сравнение без учета регистра
var allowedExt = map[string]Format{
	".jpeg": FormatJPEG,
	".jpg":  FormatJPEG,
	".png":  FormatPNG,
	".tiff": FormatTIFF,
	".svg":  FormatSVG,
}

// FormatFromFilename resolves the output format from the file extension
func FormatFromFilename(filename string) (Format, error) {
	f, ok := allowedExt[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", ErrUnsupportedExt
	}
	return f, nil
}

var ContentTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatTIFF: "image/tiff",
	FormatSVG:  "image/svg+xml",
}

//--------------------

// Progress and completion texts
func ProgressText(r Rendition, url string) string {
	return fmt.Sprintf("Done resize to %s, URL: %s", r.Size(), url)
}

func CompletionText(imageID, projectID int64) string {
	return fmt.Sprintf("Image %d in project %d processing done.", imageID, projectID)
}

// ------------------

var (
	ErrCommon500         error = errors.New("something went wrong. Try again later")
	ErrValidation        error = errors.New("invalid upload")
	ErrUnsupportedExt    error = fmt.Errorf("%w: file extension is not allowed", ErrValidation)
	ErrEmptyUpload       error = fmt.Errorf("%w: empty or unreadable file", ErrValidation)
	ErrIncorrectProject  error = fmt.Errorf("%w: incorrect project id", ErrValidation)
	ErrIncorrectID       error = errors.New("incorrect image id")
	ErrConflict          error = errors.New("image with this filename already exists in project")
	ErrImageNotFound     error = errors.New("specified image doesn't exist")
	ErrDecode            error = errors.New("failed to decode image")
	ErrUnsupportedFormat error = errors.New("output format is not supported")
	ErrPoolClosed        error = errors.New("processing pool is closed")
)
