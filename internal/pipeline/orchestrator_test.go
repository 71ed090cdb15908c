package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/UnendingLoop/ImagePipeline/internal/imageproc"
	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func uploadedImage() model.Image {
	return model.Image{
		ID:          11,
		Filename:    "cat.jpg",
		ProjectID:   7,
		State:       model.StateUploaded,
		OriginalURL: "http://minio/images/cat.jpg",
	}
}

func requireNoRenditions(t *testing.T, img model.Image) {
	t.Helper()
	require.Nil(t, img.ThumbURL)
	require.Nil(t, img.BigThumbURL)
	require.Nil(t, img.Big1920URL)
	require.Nil(t, img.D2500URL)
}

func TestOrchestrator_Run_Success(t *testing.T) {
	repo := newMemRepo(uploadedImage())
	hub := &recordingNotifier{}

	bounds := map[string]image.Config{}
	store := &mockStore{
		putFn: func(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
			require.Equal(t, "image/jpeg", ct)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, size, int64(len(data)))
			cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
			require.NoError(t, err)
			bounds[key] = cfg
			return nil
		},
	}

	o := NewOrchestrator(repo, store, imageproc.Resize, hub)
	out := o.Run(context.Background(), Task{ImageID: 11, Filename: "cat.jpg", Data: jpegBytes(t, 3000, 2000), Format: model.FormatJPEG})

	require.NoError(t, out.Err)
	require.False(t, out.Failed())
	require.Equal(t, model.StateDone, out.State)

	img, history := repo.snapshot()
	require.Equal(t, []model.State{model.StateUploaded, model.StateProcessing, model.StateDone}, history)
	require.True(t, img.HasRenditions())
	require.Equal(t, "http://minio/images/thumb_cat.jpg", *img.ThumbURL)
	require.Equal(t, "http://minio/images/d2500_cat.jpg", *img.D2500URL)

	require.Equal(t, []string{"thumb_cat.jpg", "big_thumb_cat.jpg", "big_1920_cat.jpg", "d2500_cat.jpg"}, store.putted)
	require.Equal(t, []string{
		"Done resize to 150x120, URL: http://minio/images/thumb_cat.jpg",
		"Done resize to 700x700, URL: http://minio/images/big_thumb_cat.jpg",
		"Done resize to 1920x1080, URL: http://minio/images/big_1920_cat.jpg",
		"Done resize to 2500x2500, URL: http://minio/images/d2500_cat.jpg",
		"Image 11 in project 7 processing done.",
	}, hub.texts)

	// пропорции 3:2 сохраняются, каждая копия вписана в свою рамку
	want := map[string][2]int{
		"thumb_cat.jpg":     {150, 100},
		"big_thumb_cat.jpg": {700, 466},
		"big_1920_cat.jpg":  {1620, 1080},
		"d2500_cat.jpg":     {2500, 1666},
	}
	for key, wh := range want {
		require.Equal(t, wh[0], bounds[key].Width, key)
		require.Equal(t, wh[1], bounds[key].Height, key)
	}
}

func TestOrchestrator_Run_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		data       []byte
		store      *mockStore
		hubErr     error
		complErr   error
		wantStage  string
		wantRend   string
		wantErr    error
		wantPutted int
	}{
		{
			name:       "corrupt payload",
			data:       []byte("definitely not a jpeg"),
			store:      &mockStore{},
			wantStage:  StageResize,
			wantRend:   model.Thumb.Name,
			wantErr:    model.ErrDecode,
			wantPutted: 0,
		},
		{
			name: "storage fails on second rendition",
			store: &mockStore{
				putFn: func(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
					if strings.HasPrefix(key, model.BigThumb.Name+"_") {
						return boom
					}
					return nil
				},
			},
			wantStage:  StageStore,
			wantRend:   model.BigThumb.Name,
			wantErr:    boom,
			wantPutted: 2,
		},
		{
			name: "url fails",
			store: &mockStore{
				urlFn: func(ctx context.Context, key string) (string, error) {
					return "", boom
				},
			},
			wantStage:  StageURL,
			wantRend:   model.Thumb.Name,
			wantErr:    boom,
			wantPutted: 1,
		},
		{
			name:       "progress message cannot be persisted",
			store:      &mockStore{},
			hubErr:     boom,
			wantStage:  StageNotify,
			wantRend:   model.Thumb.Name,
			wantErr:    boom,
			wantPutted: 1,
		},
		{
			name:       "final commit fails",
			store:      &mockStore{},
			complErr:   boom,
			wantStage:  StageComplete,
			wantErr:    boom,
			wantPutted: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo(uploadedImage())
			repo.completeErr = tt.complErr
			hub := &recordingNotifier{err: tt.hubErr}

			data := tt.data
			if data == nil {
				data = jpegBytes(t, 300, 200)
			}

			o := NewOrchestrator(repo, tt.store, imageproc.Resize, hub)
			out := o.Run(context.Background(), Task{ImageID: 11, Filename: "cat.jpg", Data: data, Format: model.FormatJPEG})

			require.True(t, out.Failed())
			require.ErrorIs(t, out.Err, tt.wantErr)
			require.Equal(t, tt.wantStage, out.Stage)
			require.Equal(t, tt.wantRend, out.Rendition)
			require.Equal(t, model.StateError, out.State)
			require.Len(t, tt.store.putted, tt.wantPutted)

			img, _ := repo.snapshot()
			require.Equal(t, model.StateError, img.State)
			requireNoRenditions(t, img)
			for _, text := range hub.texts {
				require.NotContains(t, text, "processing done")
			}
		})
	}
}

func TestOrchestrator_Run_RefusesImageNotInUploaded(t *testing.T) {
	for _, st := range []model.State{model.StateProcessing, model.StateDone, model.StateError} {
		t.Run(string(st), func(t *testing.T) {
			img := uploadedImage()
			img.State = st
			repo := newMemRepo(img)
			store := &mockStore{}
			hub := &recordingNotifier{}

			out := NewOrchestrator(repo, store, imageproc.Resize, hub).
				Run(context.Background(), Task{ImageID: 11, Data: jpegBytes(t, 10, 10), Format: model.FormatJPEG})

			require.ErrorIs(t, out.Err, model.ErrIllegalTransition)
			require.Equal(t, StageStart, out.Stage)
			require.Equal(t, st, out.State)
			require.Empty(t, store.putted)
			require.Empty(t, hub.texts)

			got, _ := repo.snapshot()
			require.Equal(t, st, got.State)
		})
	}
}

func TestOrchestrator_Run_ImageMissing(t *testing.T) {
	repo := newMemRepo(uploadedImage())
	store := &mockStore{}

	out := NewOrchestrator(repo, store, imageproc.Resize, &recordingNotifier{}).
		Run(context.Background(), Task{ImageID: 999, Data: jpegBytes(t, 10, 10), Format: model.FormatJPEG})

	require.ErrorIs(t, out.Err, model.ErrImageNotFound)
	require.Equal(t, StageFetch, out.Stage)
	require.Empty(t, store.putted)
}

func TestOrchestrator_Run_StartFailureMarksError(t *testing.T) {
	repo := newMemRepo(uploadedImage())
	// первая попытка (uploaded -> processing) падает, вторая (uploaded -> error) проходит
	calls := 0
	wrapped := &flakyRepo{memRepo: repo, failFirst: &calls}

	out := NewOrchestrator(wrapped, &mockStore{}, imageproc.Resize, &recordingNotifier{}).
		Run(context.Background(), Task{ImageID: 11, Data: jpegBytes(t, 10, 10), Format: model.FormatJPEG})

	require.Equal(t, StageStart, out.Stage)
	require.Equal(t, model.StateError, out.State)
	img, _ := repo.snapshot()
	require.Equal(t, model.StateError, img.State)
}

func TestOrchestrator_Run_SVGCannotBeEncoded(t *testing.T) {
	repo := newMemRepo(uploadedImage())
	out := NewOrchestrator(repo, &mockStore{}, imageproc.Resize, &recordingNotifier{}).
		Run(context.Background(), Task{ImageID: 11, Data: jpegBytes(t, 10, 10), Format: model.FormatSVG})

	require.ErrorIs(t, out.Err, model.ErrUnsupportedFormat)
	require.Equal(t, model.StateError, out.State)
}

type flakyRepo struct {
	*memRepo
	failFirst *int
}

func (f *flakyRepo) UpdateState(ctx context.Context, id int64, from, to model.State) error {
	*f.failFirst++
	if *f.failFirst == 1 {
		return errors.New("connection refused")
	}
	return f.memRepo.UpdateState(ctx, id, from, to)
}
