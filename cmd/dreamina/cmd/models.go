package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/dreamina/pkg/models"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List image models, aspect ratios and video durations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := map[string]any{
			"image_models":    models.ImageModels,
			"video_models":    models.VideoModels,
			"ratios":          models.ImageRatios,
			"video_durations": models.VideoDurations,
			"default_model":   models.DefaultImageModel,
		}
		return render(cmd.OutOrStdout(), out, func(t *tablewriter.Table) {
			t.Header("Type", "Name", "Model Key", "Default")
			for _, name := range models.ImageModelNames() {
				def := ""
				if name == models.DefaultImageModel {
					def = "yes"
				}
				t.Append("image", name, models.ImageModels[name], def)
			}
			for name, key := range models.VideoModels {
				t.Append("video", name, key, "")
			}
			durations := make([]string, len(models.VideoDurations))
			for i, d := range models.VideoDurations {
				durations[i] = fmt.Sprintf("%ds", d)
			}
			t.Append("ratios", strings.Join(models.ImageRatios, " "), "", models.DefaultRatio)
			t.Append("durations", strings.Join(durations, " "), "", fmt.Sprintf("%ds", models.DefaultVideoDuration))
		})
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
