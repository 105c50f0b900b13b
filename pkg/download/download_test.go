package download

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/retry"
)

func quickRetry() retry.Config {
	return retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func TestToFileRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	d := New(Options{Retry: quickRetry()})
	path := filepath.Join(t.TempDir(), "nested", "out.png")
	n, err := d.ToFile(context.Background(), srv.URL+"/a.png", path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))
}

func TestToFileDoesNotRetryNotFound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := New(Options{Retry: quickRetry()}).ToFile(context.Background(), srv.URL, filepath.Join(dir, "x.png"))
	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindTransport))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "no partial files left behind")
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "image_20260304_050607_1.png", FileName(models.KindTextToImage, at, 1))
	assert.Equal(t, "edit_20260304_050607_2.png", FileName(models.KindImageEdit, at, 2))
	assert.Equal(t, "video_20260304_050607.mp4", FileName(models.KindImageToVideo, at, 0))
	assert.Equal(t, "video_start_end_20260304_050607.mp4", FileName(models.KindStartEndToVideo, at, 0))
	assert.Equal(t, "video_multi_frame_20260304_050607.mp4", FileName(models.KindMultiFrameToVideo, at, 0))
}

func TestResultSavesImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	var rec models.RawResult
	body := `{"item_list":[{"image":{"large_images":[{"image_url":"` + srv.URL + `/1"},{"image_url":"` + srv.URL + `/2"}]}}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &rec))

	dir := t.TempDir()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	saved, err := New(Options{}).Result(context.Background(), dir, models.KindImageEdit, &rec, at)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, filepath.Join(dir, "edit_20260102_030405_2.png"), saved[1].Path)
}

func TestResultSavesVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("MP4"))
	}))
	defer srv.Close()

	var rec models.RawResult
	body := `{"item_list":[{"video":{"origin_video":{"video_url":"` + srv.URL + `/v"}}}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &rec))

	dir := t.TempDir()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	saved, err := New(Options{}).Result(context.Background(), dir, "", &rec, at)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, filepath.Join(dir, "video_20260102_030405.mp4"), saved[0].Path)
}
