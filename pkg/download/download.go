// Package download saves generated artifacts to disk.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/extract"
	"github.com/psantana5/dreamina/pkg/logging"
	"github.com/psantana5/dreamina/pkg/metrics"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/retry"
)

const (
	op              = "download"
	timestampLayout = "20060102_150405"
	defaultTimeout  = 120 * time.Second
)

type Options struct {
	HTTPClient *http.Client
	Retry      retry.Config
	Logger     *logging.Logger
	Metrics    *metrics.Recorder
}

// Downloader fetches artifact URLs. Unlike API calls, downloads are retried.
type Downloader struct {
	httpClient *http.Client
	retry      retry.Config
	logger     *logging.Logger
	metrics    *metrics.Recorder
}

func New(opts Options) *Downloader {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	cfg := opts.Retry
	if cfg.MaxRetries == 0 && cfg.InitialBackoff == 0 && cfg.Multiplier == 0 {
		cfg = retry.DefaultConfig()
	}
	return &Downloader{
		httpClient: httpClient,
		retry:      cfg,
		logger:     logging.OrDiscard(opts.Logger),
		metrics:    opts.Metrics,
	}
}

// Fetch streams url into w with a single attempt.
func (d *Downloader) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, apierr.Validation("invalid download url %q: %v", url, err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, apierr.Transport(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, apierr.Transport(op, resp.StatusCode, fmt.Errorf("status %d for %s", resp.StatusCode, url))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, apierr.Transport(op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	return n, nil
}

// ToFile downloads url to path, creating parent directories. The file is
// written under a temporary name and renamed once complete, so a failed
// attempt never leaves a partial artifact behind.
func (d *Downloader) ToFile(ctx context.Context, url, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	var written int64
	err := retry.Do(ctx, d.retry, func(ctx context.Context) error {
		tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		n, err := d.Fetch(ctx, url, tmp)
		if closeErr := tmp.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
		if err != nil {
			d.logger.Debug().Err(err).Str("url", url).Msg("download attempt failed")
			return err
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			return fmt.Errorf("failed to move download into place: %w", err)
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.metrics.AddDownloadBytes(written)
	d.logger.Info().Str("path", path).Int64("bytes", written).Msg("downloaded")
	return written, nil
}

// FileName returns the conventional artifact name for kind. index is
// 1-based and only used for images.
func FileName(kind models.Kind, at time.Time, index int) string {
	ts := at.Format(timestampLayout)
	switch kind {
	case models.KindImageEdit:
		return fmt.Sprintf("edit_%s_%d.png", ts, index)
	case models.KindImageToVideo:
		return fmt.Sprintf("video_%s.mp4", ts)
	case models.KindStartEndToVideo:
		return fmt.Sprintf("video_start_end_%s.mp4", ts)
	case models.KindMultiFrameToVideo:
		return fmt.Sprintf("video_multi_frame_%s.mp4", ts)
	default:
		return fmt.Sprintf("image_%s_%d.png", ts, index)
	}
}

// VideoFileName names a video whose kind is unknown.
func VideoFileName(at time.Time) string {
	return fmt.Sprintf("video_%s.mp4", at.Format(timestampLayout))
}

// Saved is one downloaded artifact.
type Saved struct {
	URL   string `json:"url" yaml:"url"`
	Path  string `json:"path" yaml:"path"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

// Result saves every artifact of a successful job into dir. Videos are
// detected from the record, so kind may be empty.
func (d *Downloader) Result(ctx context.Context, dir string, kind models.Kind, r *models.RawResult, at time.Time) ([]Saved, error) {
	var saved []Saved
	if v, ok := extract.Video(r); ok {
		name := VideoFileName(at)
		if kind.IsVideo() {
			name = FileName(kind, at, 0)
		}
		path := filepath.Join(dir, name)
		n, err := d.ToFile(ctx, v.URL, path)
		if err != nil {
			return saved, err
		}
		return append(saved, Saved{URL: v.URL, Path: path, Bytes: n}), nil
	}

	imageKind := kind
	if imageKind.IsVideo() {
		imageKind = models.KindTextToImage
	}
	for i, img := range extract.Images(r) {
		path := filepath.Join(dir, FileName(imageKind, at, i+1))
		n, err := d.ToFile(ctx, img.URL, path)
		if err != nil {
			return saved, err
		}
		saved = append(saved, Saved{URL: img.URL, Path: path, Bytes: n})
	}
	return saved, nil
}
