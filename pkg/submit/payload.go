package submit

import (
	"encoding/base64"
	"strings"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/models"
)

type textToImagePayload struct {
	GenerateType models.Kind `json:"generate_type"`
	AgentScene   string      `json:"agent_scene"`
	Prompt       string      `json:"prompt"`
	Ratio        string      `json:"ratio"`
	ModelKey     string      `json:"model_key"`
	SubjectID    string      `json:"subject_id"`
}

type imageEditPayload struct {
	GenerateType    models.Kind `json:"generate_type"`
	AgentScene      string      `json:"agent_scene"`
	Prompt          string      `json:"prompt"`
	Ratio           string      `json:"ratio"`
	ResourceURIList []string    `json:"resource_uri_list"`
	SubjectID       string      `json:"subject_id"`
}

type imageToVideoPayload struct {
	GenerateType  models.Kind `json:"generate_type"`
	AgentScene    string      `json:"agent_scene"`
	FirstFrameURI string      `json:"first_frame_resource_uri"`
	Duration      int         `json:"duration"`
	Prompt        string      `json:"prompt,omitempty"`
}

type startEndPayload struct {
	GenerateType  models.Kind `json:"generate_type"`
	AgentScene    string      `json:"agent_scene"`
	Prompt        string      `json:"prompt"`
	Duration      int         `json:"duration"`
	FirstFrameURI string      `json:"first_frame_resource_uri"`
	LastFrameURI  string      `json:"last_frame_resource_uri"`
}

type multiFramePayload struct {
	GenerateType  models.Kind `json:"generate_type"`
	AgentScene    string      `json:"agent_scene"`
	MediaURIs     []string    `json:"media_resource_uri_list"`
	DurationList  []int       `json:"duration_list"`
	MediaTypeList []string    `json:"media_type_list"`
	PromptList    []string    `json:"prompt_list"`
}

type uploadPayload struct {
	ImageData  string `json:"image_data"`
	AgentScene string `json:"agent_scene"`
}

// BuildPayload validates req and maps it to the operation and body the
// vendor expects. agentScene may be empty for the default.
func BuildPayload(req models.JobRequest, agentScene string) (client.Operation, any, error) {
	if req == nil {
		return client.Operation{}, nil, apierr.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return client.Operation{}, nil, err
	}
	if agentScene == "" {
		agentScene = models.AgentScene
	}

	switch r := req.(type) {
	case models.TextToImageRequest:
		return client.OpImageGenerate, textToImagePayload{
			GenerateType: models.KindTextToImage,
			AgentScene:   agentScene,
			Prompt:       r.Prompt,
			Ratio:        orDefault(r.Ratio, models.DefaultRatio),
			ModelKey:     models.ImageModelKey(r.Model),
			SubjectID:    models.TextToImageSubjectID,
		}, nil

	case models.ImageEditRequest:
		return client.OpImageGenerate, imageEditPayload{
			GenerateType:    models.KindImageEdit,
			AgentScene:      agentScene,
			Prompt:          r.Prompt,
			Ratio:           orDefault(r.Ratio, models.DefaultRatio),
			ResourceURIList: []string{r.SourceURI},
			SubjectID:       models.ImageEditSubjectID,
		}, nil

	case models.ImageToVideoRequest:
		return client.OpVideoGenerate, imageToVideoPayload{
			GenerateType:  models.KindImageToVideo,
			AgentScene:    agentScene,
			FirstFrameURI: r.FirstFrameURI,
			Duration:      durationOrDefault(r.Duration),
			Prompt:        strings.TrimSpace(r.Prompt),
		}, nil

	case models.StartEndToVideoRequest:
		return client.OpVideoGenerate, startEndPayload{
			GenerateType:  models.KindStartEndToVideo,
			AgentScene:    agentScene,
			Prompt:        orDefault(r.Prompt, models.DefaultStartEndPrompt),
			Duration:      durationOrDefault(r.Duration),
			FirstFrameURI: r.FirstFrameURI,
			LastFrameURI:  r.LastFrameURI,
		}, nil

	case models.MultiFrameToVideoRequest:
		return client.OpVideoGenerate, buildMultiFrame(r, agentScene), nil

	case models.UploadRequest:
		return client.OpUpload, uploadPayload{
			ImageData:  encodeImage(r),
			AgentScene: agentScene,
		}, nil
	}

	return client.Operation{}, nil, apierr.Validation("unsupported request type %T", req)
}

func buildMultiFrame(r models.MultiFrameToVideoRequest, agentScene string) multiFramePayload {
	n := len(r.FrameURIs)
	p := multiFramePayload{
		GenerateType:  models.KindMultiFrameToVideo,
		AgentScene:    agentScene,
		MediaURIs:     append([]string(nil), r.FrameURIs...),
		DurationList:  make([]int, n),
		MediaTypeList: make([]string, n),
		PromptList:    make([]string, n),
	}
	for i := 0; i < n; i++ {
		p.MediaTypeList[i] = "image"
		p.DurationList[i] = models.DefaultFrameDuration
		if r.Durations != nil {
			p.DurationList[i] = r.Durations[i]
		}
		p.PromptList[i] = models.FramePrompt(i + 1)
		if r.Prompts != nil {
			p.PromptList[i] = r.Prompts[i]
		}
	}
	return p
}

func encodeImage(r models.UploadRequest) string {
	if len(r.Data) > 0 {
		return base64.StdEncoding.EncodeToString(r.Data)
	}
	return StripDataURI(r.Base64)
}

// StripDataURI removes a "data:<mime>;base64," prefix if present.
func StripDataURI(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func durationOrDefault(d int) int {
	if d == 0 {
		return models.DefaultVideoDuration
	}
	return d
}
