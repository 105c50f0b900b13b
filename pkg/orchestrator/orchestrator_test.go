package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/client/clienttest"
	"github.com/psantana5/dreamina/pkg/extract"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/poller"
	"github.com/psantana5/dreamina/pkg/store"
)

var fast = poller.Budget{MaxAttempts: 5, Interval: time.Millisecond}

func submitted(id string) clienttest.Reply {
	return clienttest.OK(map[string]any{"submit_id": id})
}

func history(id string, rec map[string]any) clienttest.Reply {
	return clienttest.OK(map[string]any{id: rec})
}

func imageRecord(status int, url, uri string) map[string]any {
	return map[string]any{
		"status": status,
		"item_list": []any{map[string]any{"image": map[string]any{"large_images": []any{
			map[string]any{"image_url": url, "image_uri": uri},
		}}}},
	}
}

func TestSubmitAndWaitImage(t *testing.T) {
	caller := clienttest.New(
		submitted("s1"),
		history("s1", map[string]any{"status": 20}),
		history("s1", imageRecord(50, "https://cdn/1.png", "tos/1")),
	)
	hist := store.NewMemoryStore()
	o := New(caller, Options{History: hist})

	out, err := o.SubmitAndWait(context.Background(), models.TextToImageRequest{Prompt: "cat"}, fast)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.State)
	assert.Equal(t, models.JobHandle("s1"), out.Handle)
	assert.Equal(t, 2, out.Attempts)

	calls := caller.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, client.OpImageGenerate.Name, calls[0].Op.Name)
	assert.Equal(t, client.OpQuery.Name, calls[1].Op.Name)

	imgs := extract.Images(out.Result)
	require.Len(t, imgs, 1)
	assert.Equal(t, "tos/1", imgs[0].ContentURI)

	e, err := hist.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, string(models.OutcomeSucceeded), e.State)
	assert.Equal(t, []string{"https://cdn/1.png"}, e.URLs)
	assert.Equal(t, "cat", e.Prompt)
}

func TestContentURIRoundTrip(t *testing.T) {
	caller := clienttest.New(
		submitted("gen"),
		history("gen", imageRecord(50, "https://cdn/1.png", "tos-cn-i/first")),
		submitted("vid"),
		history("vid", map[string]any{
			"status": "succeed",
			"item_list": []any{map[string]any{"video": map[string]any{
				"video_resource": map[string]any{"video_url": "https://cdn/v.mp4"},
			}}},
		}),
	)
	o := New(caller, Options{})
	ctx := context.Background()

	out, err := o.SubmitAndWait(ctx, models.TextToImageRequest{Prompt: "castle"}, fast)
	require.NoError(t, err)
	uri := extract.Images(out.Result)[0].ContentURI

	out, err = o.SubmitAndWait(ctx, models.ImageToVideoRequest{FirstFrameURI: uri}, fast)
	require.NoError(t, err)

	calls := caller.Calls()
	assert.Equal(t, "tos-cn-i/first", calls[2].Body["first_frame_resource_uri"])

	v, ok := extract.Video(out.Result)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/v.mp4", v.URL)
}

func TestNoHandleIsFailedOutcome(t *testing.T) {
	caller := clienttest.New(clienttest.OK(map[string]any{}))
	out, err := New(caller, Options{}).SubmitAndWait(context.Background(), models.TextToImageRequest{Prompt: "x"}, fast)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, out.State)
	assert.Equal(t, models.NoHandleReason, out.Reason)
	assert.Equal(t, 1, caller.Count(), "must not poll")
}

func TestSubmissionErrorsPropagate(t *testing.T) {
	caller := clienttest.New(clienttest.Fail(apierr.API("image-generate", "1", "rejected")))
	_, err := New(caller, Options{}).SubmitAndWait(context.Background(), models.TextToImageRequest{Prompt: "x"}, fast)
	assert.True(t, apierr.IsKind(err, apierr.KindAPI))
	assert.Equal(t, 1, caller.Count())
}

func TestValidationSendsNothing(t *testing.T) {
	caller := clienttest.New(submitted("never"))
	_, err := New(caller, Options{}).SubmitAndWait(context.Background(),
		models.MultiFrameToVideoRequest{FrameURIs: []string{"only"}}, fast)
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	assert.Zero(t, caller.Count())
}

func TestUploadRequiresSubmit(t *testing.T) {
	caller := clienttest.New(clienttest.OK(map[string]any{"resource_uri": "tos/up"}))
	o := New(caller, Options{})

	_, err := o.SubmitAndWait(context.Background(), models.UploadRequest{Data: []byte("x")}, fast)
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	assert.Zero(t, caller.Count())

	h, err := o.Submit(context.Background(), models.UploadRequest{Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, models.JobHandle("tos/up"), h)
}

func TestSubmitRecordsHistory(t *testing.T) {
	caller := clienttest.New(submitted("fire"))
	hist := store.NewMemoryStore()
	h, err := New(caller, Options{History: hist}).Submit(context.Background(), models.ImageEditRequest{SourceURI: "u", Prompt: "p"})
	require.NoError(t, err)

	e, err := hist.Get(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, store.StateSubmitted, e.State)
	assert.Equal(t, models.KindImageEdit, e.Kind)
}

func TestTimedOutOutcome(t *testing.T) {
	caller := clienttest.New(submitted("slow"), history("slow", map[string]any{"status": 45}))
	out, err := New(caller, Options{}).SubmitAndWait(context.Background(),
		models.ImageToVideoRequest{FirstFrameURI: "u"}, poller.Budget{MaxAttempts: 3, Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimedOut, out.State)
	assert.Equal(t, 4, caller.Count())
}

func TestCancellationPropagates(t *testing.T) {
	caller := clienttest.New(submitted("c"), history("c", map[string]any{"status": 20}))
	ctx, cancel := context.WithCancel(context.Background())
	o := New(caller, Options{OnAttempt: func(poller.Attempt) { cancel() }})

	_, err := o.SubmitAndWait(ctx, models.TextToImageRequest{Prompt: "x"}, poller.Budget{MaxAttempts: 10, Interval: time.Hour})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWaitUnknownHandle(t *testing.T) {
	caller := clienttest.New(history("old", map[string]any{"status": 50}))
	out, err := New(caller, Options{History: store.NewMemoryStore()}).Wait(context.Background(), "", "old", fast)
	require.NoError(t, err)
	assert.True(t, out.OK())
}

func TestDefaultBudget(t *testing.T) {
	tests := []struct {
		kind     models.Kind
		attempts int
		interval time.Duration
	}{
		{models.KindTextToImage, 60, 3 * time.Second},
		{models.KindImageEdit, 60, 3 * time.Second},
		{models.KindImageToVideo, 120, 10 * time.Second},
		{models.KindStartEndToVideo, 120, 10 * time.Second},
		{models.KindMultiFrameToVideo, 180, 10 * time.Second},
		{"", 60, 5 * time.Second},
	}
	for _, tt := range tests {
		b := DefaultBudget(tt.kind)
		if b.MaxAttempts != tt.attempts || b.Interval != tt.interval {
			t.Errorf("DefaultBudget(%q) = %+v", tt.kind, b)
		}
	}
}
