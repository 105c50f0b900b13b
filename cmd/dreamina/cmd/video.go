package cmd

import (
	"github.com/spf13/cobra"

	"github.com/psantana5/dreamina/pkg/models"
)

var (
	firstFramePrompt   string
	firstFrameDuration int
	firstFrameWait     waitFlags

	startEndPrompt   string
	startEndDuration int
	startEndWait     waitFlags

	multiFrameDurations []int
	multiFramePrompts   []string
	multiFrameWait      waitFlags
)

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Generate videos from key frames",
	Long:  `Commands that turn one, two or several image content URIs into a video.`,
}

var videoFirstFrameCmd = &cobra.Command{
	Use:   "first-frame <content-uri>",
	Short: "Animate a single image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.ImageToVideoRequest{
			FirstFrameURI: args[0],
			Prompt:        firstFramePrompt,
			Duration:      firstFrameDuration,
		}
		return runJob(cmd, req, &firstFrameWait)
	},
}

var videoStartEndCmd = &cobra.Command{
	Use:   "start-end <first-uri> <last-uri>",
	Short: "Interpolate between a first and a last frame",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.StartEndToVideoRequest{
			FirstFrameURI: args[0],
			LastFrameURI:  args[1],
			Prompt:        startEndPrompt,
			Duration:      startEndDuration,
		}
		return runJob(cmd, req, &startEndWait)
	},
}

var videoMultiFrameCmd = &cobra.Command{
	Use:   "multi-frame <uri> <uri>...",
	Short: "Stitch two or more key frames into one video",
	Long: `Stitch key frames into one video. --durations and --prompts, when given,
need one entry per frame; otherwise every frame gets 2 seconds and a
placeholder prompt.`,
	Example: `  dreamina video multi-frame tos/a tos/b tos/c --durations 2,3,2 --prompts "wake,stretch,run" --wait`,
	Args:    cobra.MinimumNArgs(models.MinFrames),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.MultiFrameToVideoRequest{FrameURIs: args}
		if cmd.Flags().Changed("durations") {
			req.Durations = multiFrameDurations
		}
		if cmd.Flags().Changed("prompts") {
			req.Prompts = multiFramePrompts
		}
		return runJob(cmd, req, &multiFrameWait)
	},
}

func init() {
	rootCmd.AddCommand(videoCmd)
	videoCmd.AddCommand(videoFirstFrameCmd, videoStartEndCmd, videoMultiFrameCmd)

	videoFirstFrameCmd.Flags().StringVar(&firstFramePrompt, "prompt", "", "motion prompt")
	videoFirstFrameCmd.Flags().IntVar(&firstFrameDuration, "duration", models.DefaultVideoDuration, "length in seconds (5 or 10)")
	firstFrameWait.register(videoFirstFrameCmd)

	videoStartEndCmd.Flags().StringVar(&startEndPrompt, "prompt", models.DefaultStartEndPrompt, "transition prompt")
	videoStartEndCmd.Flags().IntVar(&startEndDuration, "duration", models.DefaultVideoDuration, "length in seconds (5 or 10)")
	startEndWait.register(videoStartEndCmd)

	videoMultiFrameCmd.Flags().IntSliceVar(&multiFrameDurations, "durations", nil, "seconds per frame, comma separated")
	videoMultiFrameCmd.Flags().StringSliceVar(&multiFramePrompts, "prompts", nil, "prompt per frame, comma separated")
	multiFrameWait.register(videoMultiFrameCmd)
}
