package gateway

import (
	"net/url"
	"strconv"
	"time"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/poller"
)

// jobBody is the POST /jobs payload. Only the fields of the chosen kind are read.
type jobBody struct {
	Kind          string   `json:"kind"`
	Prompt        string   `json:"prompt,omitempty"`
	Ratio         string   `json:"ratio,omitempty"`
	Model         string   `json:"model,omitempty"`
	SourceURI     string   `json:"source_uri,omitempty"`
	FirstFrameURI string   `json:"first_frame_uri,omitempty"`
	LastFrameURI  string   `json:"last_frame_uri,omitempty"`
	Duration      int      `json:"duration,omitempty"`
	FrameURIs     []string `json:"frame_uris,omitempty"`
	Durations     []int    `json:"durations,omitempty"`
	Prompts       []string `json:"prompts,omitempty"`
}

func (b jobBody) request() (models.JobRequest, error) {
	kind, ok := models.ParseKind(b.Kind)
	if !ok {
		return nil, apierr.Validation("unknown job kind %q", b.Kind)
	}
	switch kind {
	case models.KindTextToImage:
		return models.TextToImageRequest{Prompt: b.Prompt, Ratio: b.Ratio, Model: b.Model}, nil
	case models.KindImageEdit:
		return models.ImageEditRequest{SourceURI: b.SourceURI, Prompt: b.Prompt, Ratio: b.Ratio}, nil
	case models.KindImageToVideo:
		return models.ImageToVideoRequest{FirstFrameURI: b.FirstFrameURI, Prompt: b.Prompt, Duration: b.Duration}, nil
	case models.KindStartEndToVideo:
		return models.StartEndToVideoRequest{
			FirstFrameURI: b.FirstFrameURI,
			LastFrameURI:  b.LastFrameURI,
			Prompt:        b.Prompt,
			Duration:      b.Duration,
		}, nil
	case models.KindMultiFrameToVideo:
		return models.MultiFrameToVideoRequest{FrameURIs: b.FrameURIs, Durations: b.Durations, Prompts: b.Prompts}, nil
	}
	return nil, apierr.Validation("kind %q is not submitted through /jobs", b.Kind)
}

// budgetFrom reads max_attempts, interval and timeout. Missing values stay
// zero; an all-zero budget means the kind's default.
func budgetFrom(q url.Values) (poller.Budget, error) {
	var b poller.Budget
	if v := q.Get("max_attempts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return b, apierr.Validation("max_attempts must be a positive integer")
		}
		b.MaxAttempts = n
	}
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return b, apierr.Validation("invalid interval %q", v)
		}
		b.Interval = d
	}
	if v := q.Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return b, apierr.Validation("invalid timeout %q", v)
		}
		b.Timeout = d
	}
	return b, nil
}

// fillBudget completes a partially specified budget from def.
func fillBudget(b, def poller.Budget) poller.Budget {
	if b == (poller.Budget{}) {
		return def
	}
	if b.MaxAttempts == 0 {
		b.MaxAttempts = def.MaxAttempts
	}
	if b.Interval == 0 {
		b.Interval = def.Interval
	}
	return b
}

type submitResponse struct {
	Handle models.JobHandle `json:"handle"`
	Kind   models.Kind      `json:"kind"`
}

type outcomeResponse struct {
	Outcome models.Outcome           `json:"outcome"`
	Images  []models.ImageDescriptor `json:"images,omitempty"`
	Video   *models.VideoResult      `json:"video,omitempty"`
}

type statusResponse struct {
	Handle models.JobHandle         `json:"handle"`
	Status models.Status            `json:"status"`
	Images []models.ImageDescriptor `json:"images,omitempty"`
	Video  *models.VideoResult      `json:"video,omitempty"`
}

type uploadResponse struct {
	ContentURI models.JobHandle `json:"content_uri"`
}

type modelsResponse struct {
	ImageModels    map[string]string `json:"image_models"`
	VideoModels    map[string]string `json:"video_models"`
	Ratios         []string          `json:"ratios"`
	VideoDurations []int             `json:"video_durations"`
	DefaultModel   string            `json:"default_model"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
