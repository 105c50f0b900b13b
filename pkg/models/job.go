package models

import (
	"strings"

	"github.com/psantana5/dreamina/pkg/apierr"
)

// Kind identifies the generation type of a job. Values are the vendor's
// generate_type tags, except KindUpload which has none.
type Kind string

const (
	KindTextToImage       Kind = "text2imageV2"
	KindImageEdit         Kind = "seedEdit40"
	KindImageToVideo      Kind = "image2videoV2"
	KindStartEndToVideo   Kind = "startEnd2Video"
	KindMultiFrameToVideo Kind = "multiFrame2video"
	KindUpload            Kind = "upload"
)

// ParseKind accepts either the vendor tag or the CLI-style name.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text2imagev2", "text-to-image", "image":
		return KindTextToImage, true
	case "seededit40", "image-edit", "edit":
		return KindImageEdit, true
	case "image2videov2", "first-frame", "image-to-video":
		return KindImageToVideo, true
	case "startend2video", "start-end":
		return KindStartEndToVideo, true
	case "multiframe2video", "multi-frame":
		return KindMultiFrameToVideo, true
	case "upload":
		return KindUpload, true
	}
	return "", false
}

// IsVideo reports whether results of this kind carry a video.
func (k Kind) IsVideo() bool {
	switch k {
	case KindImageToVideo, KindStartEndToVideo, KindMultiFrameToVideo:
		return true
	}
	return false
}

// JobHandle is the opaque identifier returned at submission time. For upload
// requests it is the content URI of the stored image.
type JobHandle string

func (h JobHandle) String() string { return string(h) }

// JobRequest is implemented by every job variant below.
type JobRequest interface {
	Kind() Kind
	// Validate checks the request's own invariants without touching the network.
	Validate() error
}

// TextToImageRequest generates images from a prompt.
type TextToImageRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio,omitempty"` // defaults to 1:1
	Model  string `json:"model,omitempty"` // catalog name, defaults to v3.0
}

// ImageEditRequest edits a previously generated or uploaded image.
type ImageEditRequest struct {
	SourceURI string `json:"source_uri"`
	Prompt    string `json:"prompt"`
	Ratio     string `json:"ratio,omitempty"`
}

// ImageToVideoRequest animates a single first frame.
type ImageToVideoRequest struct {
	FirstFrameURI string `json:"first_frame_uri"`
	Prompt        string `json:"prompt,omitempty"`
	Duration      int    `json:"duration,omitempty"` // seconds, 5 or 10
}

// StartEndToVideoRequest interpolates between a first and last frame.
type StartEndToVideoRequest struct {
	FirstFrameURI string `json:"first_frame_uri"`
	LastFrameURI  string `json:"last_frame_uri"`
	Prompt        string `json:"prompt,omitempty"`
	Duration      int    `json:"duration,omitempty"`
}

// MultiFrameToVideoRequest stitches two or more key frames into one video.
// Durations and Prompts are per frame; nil means "use defaults".
type MultiFrameToVideoRequest struct {
	FrameURIs []string `json:"frame_uris"`
	Durations []int    `json:"durations,omitempty"`
	Prompts   []string `json:"prompts,omitempty"`
}

// UploadRequest stores an image and yields a reusable content URI.
// Data holds raw bytes; Base64 may be used instead (a data: URI prefix is allowed).
type UploadRequest struct {
	Data   []byte `json:"-"`
	Base64 string `json:"image_data,omitempty"`
}

func (TextToImageRequest) Kind() Kind       { return KindTextToImage }
func (ImageEditRequest) Kind() Kind         { return KindImageEdit }
func (ImageToVideoRequest) Kind() Kind      { return KindImageToVideo }
func (StartEndToVideoRequest) Kind() Kind   { return KindStartEndToVideo }
func (MultiFrameToVideoRequest) Kind() Kind { return KindMultiFrameToVideo }
func (UploadRequest) Kind() Kind            { return KindUpload }

func (r TextToImageRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return apierr.Validation("prompt is required")
	}
	return validateRatio(r.Ratio)
}

func (r ImageEditRequest) Validate() error {
	if strings.TrimSpace(r.SourceURI) == "" {
		return apierr.Validation("source uri is required")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return apierr.Validation("prompt is required")
	}
	return validateRatio(r.Ratio)
}

func (r ImageToVideoRequest) Validate() error {
	if strings.TrimSpace(r.FirstFrameURI) == "" {
		return apierr.Validation("first frame uri is required")
	}
	return validateDuration(r.Duration)
}

func (r StartEndToVideoRequest) Validate() error {
	if strings.TrimSpace(r.FirstFrameURI) == "" || strings.TrimSpace(r.LastFrameURI) == "" {
		return apierr.Validation("first and last frame uris are required")
	}
	return validateDuration(r.Duration)
}

func (r MultiFrameToVideoRequest) Validate() error {
	n := len(r.FrameURIs)
	if n < MinFrames {
		return apierr.Validation("at least %d key frames are required, got %d", MinFrames, n)
	}
	for i, uri := range r.FrameURIs {
		if strings.TrimSpace(uri) == "" {
			return apierr.Validation("frame %d has an empty uri", i+1)
		}
	}
	if r.Durations != nil && len(r.Durations) != n {
		return apierr.Validation("duration list has %d entries, want %d (one per frame)", len(r.Durations), n)
	}
	for i, d := range r.Durations {
		if d <= 0 {
			return apierr.Validation("duration for frame %d must be positive, got %d", i+1, d)
		}
	}
	if r.Prompts != nil && len(r.Prompts) != n {
		return apierr.Validation("prompt list has %d entries, want %d (one per frame)", len(r.Prompts), n)
	}
	return nil
}

func (r UploadRequest) Validate() error {
	if len(r.Data) == 0 && strings.TrimSpace(r.Base64) == "" {
		return apierr.Validation("image data is required")
	}
	return nil
}

func validateRatio(ratio string) error {
	if ratio == "" || IsValidRatio(ratio) {
		return nil
	}
	return apierr.Validation("unsupported ratio %q (want one of %s)", ratio, strings.Join(ImageRatios, ", "))
}

func validateDuration(d int) error {
	if d == 0 || IsValidVideoDuration(d) {
		return nil
	}
	return apierr.Validation("unsupported duration %d (want 5 or 10)", d)
}
