package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/dreamina/pkg/download"
	"github.com/psantana5/dreamina/pkg/extract"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/orchestrator"
	"github.com/psantana5/dreamina/pkg/poller"
	"github.com/psantana5/dreamina/pkg/shutdown"
)

// waitFlags are shared by every generation command.
type waitFlags struct {
	wait    bool
	outDir  string
	timeout time.Duration
}

func (f *waitFlags) register(c *cobra.Command) {
	c.Flags().BoolVar(&f.wait, "wait", false, "wait for the job to finish")
	c.Flags().StringVarP(&f.outDir, "out", "o", "", "download results into this directory (implies --wait)")
	c.Flags().DurationVar(&f.timeout, "timeout", 0, "stop waiting after this long (0 means attempts only)")
}

func (f *waitFlags) waiting() bool {
	return f.wait || f.outDir != ""
}

type submitted struct {
	Handle models.JobHandle `json:"handle" yaml:"handle"`
	Kind   models.Kind      `json:"kind" yaml:"kind"`
}

type jobResult struct {
	Handle   models.JobHandle         `json:"handle" yaml:"handle"`
	Kind     models.Kind              `json:"kind,omitempty" yaml:"kind,omitempty"`
	State    models.OutcomeState      `json:"state" yaml:"state"`
	Reason   string                   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempts int                      `json:"attempts" yaml:"attempts"`
	Images   []models.ImageDescriptor `json:"images,omitempty" yaml:"images,omitempty"`
	Video    *models.VideoResult      `json:"video,omitempty" yaml:"video,omitempty"`
	Files    []download.Saved         `json:"files,omitempty" yaml:"files,omitempty"`
}

var (
	imageRatio string
	imageModel string
	imageWait  waitFlags

	editRatio string
	editWait  waitFlags
)

var imageCmd = &cobra.Command{
	Use:   "image <prompt>",
	Short: "Generate images from a text prompt",
	Example: `  dreamina image "a lighthouse at dusk" --ratio 16:9 --wait
  dreamina image "a red fox" --model v4.0 -o ./out`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.TextToImageRequest{
			Prompt: strings.Join(args, " "),
			Ratio:  imageRatio,
			Model:  imageModel,
		}
		return runJob(cmd, req, &imageWait)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <content-uri> <prompt>",
	Short: "Edit a generated or uploaded image",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.ImageEditRequest{
			SourceURI: args[0],
			Prompt:    strings.Join(args[1:], " "),
			Ratio:     editRatio,
		}
		return runJob(cmd, req, &editWait)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload an image and print its content URI",
	Long:  `Upload an image file ("-" reads standard input). The printed content URI can be used as the source of edit and video jobs.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(imageCmd, editCmd, uploadCmd)

	imageCmd.Flags().StringVar(&imageRatio, "ratio", models.DefaultRatio, "aspect ratio: "+strings.Join(models.ImageRatios, ", "))
	imageCmd.Flags().StringVar(&imageModel, "model", models.DefaultImageModel, "model: "+strings.Join(models.ImageModelNames(), ", "))
	imageWait.register(imageCmd)

	editCmd.Flags().StringVar(&editRatio, "ratio", models.DefaultRatio, "aspect ratio")
	editWait.register(editCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx, stop := shutdown.SignalContext(cmd.Context())
	defer stop()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	uri, err := a.orch.Submit(ctx, models.UploadRequest{Data: data})
	if err != nil {
		return err
	}
	out := map[string]string{"content_uri": string(uri)}
	if isTable() {
		fmt.Fprintln(cmd.OutOrStdout(), uri)
		return nil
	}
	return render(cmd.OutOrStdout(), out, nil)
}

// runJob submits req and, when asked to, waits for it and downloads results.
func runJob(cmd *cobra.Command, req models.JobRequest, f *waitFlags) error {
	if err := req.Validate(); err != nil {
		return err
	}
	ctx, stop := shutdown.SignalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, progress(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()
	w := cmd.OutOrStdout()

	if !f.waiting() {
		handle, err := a.orch.Submit(ctx, req)
		if err != nil {
			return err
		}
		err = render(w, submitted{Handle: handle, Kind: req.Kind()}, func(t *tablewriter.Table) {
			t.Header("Field", "Value")
			t.Append("Handle", string(handle))
			t.Append("Kind", string(req.Kind()))
		})
		if err == nil && isTable() {
			fmt.Fprintf(w, "\nRun 'dreamina query %s' to follow the job.\n", handle)
		}
		return err
	}

	budget := orchestrator.DefaultBudget(req.Kind())
	budget.Timeout = f.timeout
	out, err := a.orch.SubmitAndWait(ctx, req, budget)
	if err != nil {
		return err
	}
	return finish(ctx, cmd, a, req.Kind(), out, f.outDir)
}

// finish reports an outcome, downloading artifacts into dir when set.
func finish(ctx context.Context, cmd *cobra.Command, a *app, kind models.Kind, out models.Outcome, dir string) error {
	res := jobResult{
		Handle:   out.Handle,
		Kind:     kind,
		State:    out.State,
		Reason:   out.Reason,
		Attempts: out.Attempts,
	}
	if out.OK() {
		res.Images = extract.Images(out.Result)
		if v, ok := extract.Video(out.Result); ok {
			res.Video = &v
		}
		if dir != "" {
			files, err := a.downloader.Result(ctx, dir, kind, out.Result, time.Now())
			res.Files = files
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
		}
	}

	if err := render(cmd.OutOrStdout(), res, func(t *tablewriter.Table) { resultTable(t, res) }); err != nil {
		return err
	}
	if !out.OK() {
		return fmt.Errorf("job did not produce a result: %s", out.Reason)
	}
	return nil
}

func resultTable(t *tablewriter.Table, res jobResult) {
	t.Header("Field", "Value")
	t.Append("Handle", string(res.Handle))
	t.Append("State", string(res.State))
	if res.Reason != "" {
		t.Append("Reason", res.Reason)
	}
	t.Append("Attempts", fmt.Sprintf("%d", res.Attempts))
	for i, img := range res.Images {
		t.Append(fmt.Sprintf("Image %d", i+1), img.URL)
		t.Append(fmt.Sprintf("Content URI %d", i+1), img.ContentURI)
	}
	if res.Video != nil {
		t.Append("Video", res.Video.URL)
	}
	for _, f := range res.Files {
		t.Append("Saved", fmt.Sprintf("%s (%d bytes)", f.Path, f.Bytes))
	}
}

// progress prints one line per status query in table mode.
func progress(w io.Writer) func(poller.Attempt) {
	if !isTable() {
		return nil
	}
	return func(a poller.Attempt) {
		if a.Err != nil {
			fmt.Fprintf(w, "[%d/%d] query failed: %v\n", a.N, a.Max, a.Err)
			return
		}
		fmt.Fprintf(w, "[%d/%d] %s\n", a.N, a.Max, a.Status)
	}
}
