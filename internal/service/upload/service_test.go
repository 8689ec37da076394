package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketfight/appeal-service/internal/storage"
)

// panicReader fails the test if the service reads the body before the
// declared metadata was checked.
type panicReader struct{}

func (panicReader) Read([]byte) (int, error) { panic("body read before validation") }

// 1x1 lossless WebP.
var tinyWebP = []byte("RIFF\x1a\x00\x00\x00WEBPVP8L\x0d\x00\x00\x00\x2f\x00\x00\x00\x10\x07\x10\x11\x11\x88\x88\xfe\x07\x00")

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newService() (*Service, *storage.MemoryStore) {
	store := storage.NewMemoryStore("http://localhost:8080/photos")
	return NewService(store, Config{MaxBytes: 1024, PresignTTL: time.Minute}, nil), store
}

func TestUpload_RejectedBeforeRead(t *testing.T) {
	svc, _ := newService()
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"oversized", Request{ContentType: "image/png", Size: 1025}, ErrTooLarge},
		{"empty", Request{ContentType: "image/png", Size: 0}, ErrEmpty},
		{"bad type", Request{ContentType: "application/pdf", Size: 10}, ErrUnsupportedType},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := svc.Upload(context.Background(), tt.req, panicReader{})
				assert.True(t, errors.Is(err, tt.want), "got %v", err)
			})
		})
	}
}

func TestUpload_StoresValidPNG(t *testing.T) {
	svc, store := newService()
	data := pngBytes(t)

	res, err := svc.Upload(context.Background(), Request{ContentType: "image/png", Size: int64(len(data))}, bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "photos/"))
	assert.True(t, strings.HasSuffix(res.Key, ".png"))
	assert.Equal(t, 4, res.Width)
	assert.Equal(t, 3, res.Height)

	info, err := store.Stat(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)
}

func TestUpload_StoresValidWebP(t *testing.T) {
	svc, _ := newService()
	res, err := svc.Upload(context.Background(), Request{ContentType: "image/webp", Size: int64(len(tinyWebP))}, bytes.NewReader(tinyWebP))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Width)
	assert.True(t, strings.HasSuffix(res.Key, ".webp"))
}

func TestUpload_ContentMismatch(t *testing.T) {
	svc, _ := newService()
	data := pngBytes(t)

	_, err := svc.Upload(context.Background(), Request{ContentType: "image/jpeg", Size: int64(len(data))}, bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrCorrupt)

	text := []byte("definitely not an image")
	_, err = svc.Upload(context.Background(), Request{ContentType: "image/png", Size: int64(len(text))}, bytes.NewReader(text))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestUpload_BodyLongerThanDeclared(t *testing.T) {
	svc, _ := newService()
	data := pngBytes(t)
	_, err := svc.Upload(context.Background(), Request{ContentType: "image/png", Size: 10}, io.MultiReader(bytes.NewReader(data)))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestPresign(t *testing.T) {
	svc, _ := newService()

	up, err := svc.Presign(context.Background(), Request{ContentType: "image/JPEG", Size: 100})
	require.NoError(t, err)
	assert.Equal(t, "PUT", up.Method)
	assert.Equal(t, "image/jpeg", up.Headers["Content-Type"])
	assert.True(t, strings.HasSuffix(up.Key, ".jpg"))

	_, err = svc.Presign(context.Background(), Request{ContentType: "image/png", Size: 4096})
	assert.ErrorIs(t, err, ErrTooLarge)
}
