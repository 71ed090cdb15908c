package mwlogger

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
)

func TestWithLogger_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Int64("image_id", 42).Logger()

	ctx := WithLogger(context.Background(), logger)
	got := LoggerFromContext(ctx)
	got.Info().Msg("hello")

	require.Contains(t, buf.String(), `"image_id":42`)
	require.Contains(t, buf.String(), `"hello"`)
}

func TestNewMWLogger_InjectsRequestLogger(t *testing.T) {
	engine := ginext.New(gin.TestMode)

	var seen bool
	engine.GET("/ping", func(c *ginext.Context) {
		_, seen = c.Request.Context().Value(loggerWithRequestID{}).(zerolog.Logger)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-1")
	w := httptest.NewRecorder()
	NewMWLogger(engine).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, seen)
}
