package models

import (
	"fmt"
	"sort"
)

const (
	// AgentScene is sent with every generation and upload payload.
	AgentScene = "infinite_canvas"

	DefaultRatio           = "1:1"
	DefaultImageModel      = "v3.0"
	DefaultVideoDuration   = 5
	DefaultFrameDuration   = 2
	DefaultStartEndPrompt  = "smooth transition between frames"
	MinFrames              = 2
	TextToImageSubjectID   = "text2image_api"
	ImageEditSubjectID     = "seed_edit_api"
	framePromptPlaceholder = "frame %d"
)

// ImageModels maps catalog names to vendor model keys.
var ImageModels = map[string]string{
	"v3.0": "high_aes_general_v30l:general_v3.0_18b",
	"v4.0": "high_aes_general_v40",
	"v4.1": "high_aes_general_v41",
	"v4.5": "high_aes_general_v40l",
}

// VideoModels is informational; the video endpoints pick their model server side.
var VideoModels = map[string]string{
	"v3.0_fast": "dreamina_ic_generate_video_model_vgfm_3.0_fast",
	"v3.0":      "dreamina_ic_generate_video_model_vgfm_3.0",
}

// ImageRatios lists accepted aspect ratios in display order.
var ImageRatios = []string{"1:1", "16:9", "9:16", "3:2", "2:3", "4:3", "3:4", "21:9"}

// VideoDurations lists accepted single/start-end video lengths in seconds.
var VideoDurations = []int{5, 10}

// ImageModelKey resolves a catalog name. Empty and unknown names fall back to
// the default model.
func ImageModelKey(name string) string {
	if key, ok := ImageModels[name]; ok {
		return key
	}
	return ImageModels[DefaultImageModel]
}

// ImageModelNames returns catalog names sorted by version.
func ImageModelNames() []string {
	names := make([]string, 0, len(ImageModels))
	for name := range ImageModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func IsValidRatio(ratio string) bool {
	for _, r := range ImageRatios {
		if r == ratio {
			return true
		}
	}
	return false
}

func IsValidVideoDuration(d int) bool {
	for _, v := range VideoDurations {
		if v == d {
			return true
		}
	}
	return false
}

// FramePrompt is the placeholder prompt for frame i (1-based).
func FramePrompt(i int) string {
	return fmt.Sprintf(framePromptPlaceholder, i)
}
