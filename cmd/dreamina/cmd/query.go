package cmd

import (
	"fmt"
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

var (
	queryOnce        bool
	queryDownload    string
	queryMaxAttempts int
	queryInterval    time.Duration
	queryTimeout     time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query <handle>",
	Short: "Follow a submitted job until it finishes",
	Long: `Poll a job handle until it succeeds, fails or the attempt budget runs out.
With --once a single status query is made and its result printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().BoolVar(&queryOnce, "once", false, "query the status once instead of waiting")
	queryCmd.Flags().StringVar(&queryDownload, "download", "", "download results into this directory")
	queryCmd.Flags().IntVar(&queryMaxAttempts, "max-attempts", orchestrator.QueryBudget.MaxAttempts, "maximum status queries")
	queryCmd.Flags().DurationVar(&queryInterval, "interval", orchestrator.QueryBudget.Interval, "delay between queries")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 0, "stop waiting after this long (0 means attempts only)")
}

type statusResult struct {
	Handle models.JobHandle         `json:"handle" yaml:"handle"`
	Status models.Status            `json:"status" yaml:"status"`
	Images []models.ImageDescriptor `json:"images,omitempty" yaml:"images,omitempty"`
	Video  *models.VideoResult      `json:"video,omitempty" yaml:"video,omitempty"`
	Files  []download.Saved         `json:"files,omitempty" yaml:"files,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	handle := models.JobHandle(args[0])
	ctx, stop := shutdown.SignalContext(cmd.Context())
	defer stop()

	onAttempt := progress(cmd.ErrOrStderr())
	if queryOnce {
		onAttempt = nil
	}
	a, err := newApp(ctx, onAttempt)
	if err != nil {
		return err
	}
	defer a.Close()

	var kind models.Kind
	if a.history != nil {
		if e, err := a.history.Get(ctx, handle); err == nil {
			kind = e.Kind
		}
	}

	if !queryOnce {
		budget := poller.Budget{MaxAttempts: queryMaxAttempts, Interval: queryInterval, Timeout: queryTimeout}
		out, err := a.orch.Wait(ctx, kind, handle, budget)
		if err != nil {
			return err
		}
		return finish(ctx, cmd, a, kind, out, queryDownload)
	}

	st, raw, err := a.orch.Query(ctx, handle)
	if err != nil {
		return err
	}
	res := statusResult{Handle: handle, Status: st}
	if st.Phase == models.PhaseSucceeded {
		res.Images = extract.Images(raw)
		if v, ok := extract.Video(raw); ok {
			res.Video = &v
		}
		if queryDownload != "" {
			res.Files, err = a.downloader.Result(ctx, queryDownload, kind, raw, time.Now())
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
		}
	}

	if err := render(cmd.OutOrStdout(), res, func(t *tablewriter.Table) {
		t.Header("Field", "Value")
		t.Append("Handle", string(res.Handle))
		t.Append("Status", res.Status.String())
		if res.Status.Reason != "" {
			t.Append("Reason", res.Status.Reason)
		}
		for i, img := range res.Images {
			t.Append(fmt.Sprintf("Image %d", i+1), img.URL)
			t.Append(fmt.Sprintf("Content URI %d", i+1), img.ContentURI)
		}
		if res.Video != nil {
			t.Append("Video", res.Video.URL)
		}
		for _, f := range res.Files {
			t.Append("Saved", f.Path)
		}
	}); err != nil {
		return err
	}
	if st.Phase == models.PhaseFailed {
		return fmt.Errorf("job did not produce a result: %s", st.Reason)
	}
	return nil
}
