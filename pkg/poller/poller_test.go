package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/client/clienttest"
	"github.com/psantana5/dreamina/pkg/models"
)

const handle = models.JobHandle("h-1")

func record(status any, extra map[string]any) clienttest.Reply {
	rec := map[string]any{"status": status}
	for k, v := range extra {
		rec[k] = v
	}
	return clienttest.OK(map[string]any{string(handle): rec})
}

func fast(n int) Budget {
	return Budget{MaxAttempts: n, Interval: time.Millisecond}
}

func TestPollSucceedsOnThirdAttempt(t *testing.T) {
	caller := clienttest.New(record(20, nil), record("processing", nil), record(50, map[string]any{
		"item_list": []any{map[string]any{"image": map[string]any{"large_images": []any{
			map[string]any{"image_url": "https://cdn/1.png", "image_uri": "tos/1"},
		}}}},
	}))

	out, err := New(caller, Options{}).Poll(context.Background(), handle, fast(10))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.State)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, caller.Count())
	require.NotNil(t, out.Result)
	require.Len(t, out.Result.ItemList, 1)
}

func TestPollFailedCarriesReason(t *testing.T) {
	caller := clienttest.New(record(30, map[string]any{"fail_msg": "sensitive content"}))
	out, err := New(caller, Options{}).Poll(context.Background(), handle, fast(5))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, out.State)
	assert.Equal(t, "sensitive content", out.Reason)
	assert.Equal(t, 1, caller.Count())
}

func TestPollFailedWithoutMessage(t *testing.T) {
	caller := clienttest.New(record("failed", nil))
	out, err := New(caller, Options{}).Poll(context.Background(), handle, fast(5))
	require.NoError(t, err)
	assert.Equal(t, models.UnknownFailure, out.Reason)
}

func TestPollTimesOutAfterBudget(t *testing.T) {
	caller := clienttest.New(record(42, nil))
	start := time.Now()
	out, err := New(caller, Options{}).Poll(context.Background(), handle, Budget{MaxAttempts: 3, Interval: 50 * time.Millisecond})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimedOut, out.State)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, caller.Count())
	// Two waits between three attempts, none after the last.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 145*time.Millisecond)
}

func TestPollAbsorbsErrors(t *testing.T) {
	caller := clienttest.New(
		clienttest.Fail(apierr.Transport("query", 502, errors.New("bad gateway"))),
		clienttest.Fail(apierr.Protocol("query", "response is not valid JSON", nil)),
		clienttest.Fail(apierr.API("query", "1", "busy")),
		record(50, nil),
	)

	var mu sync.Mutex
	var seen []Attempt
	p := New(caller, Options{OnAttempt: func(a Attempt) {
		mu.Lock()
		seen = append(seen, a)
		mu.Unlock()
	}})

	out, err := p.Poll(context.Background(), handle, fast(10))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.State)
	assert.Equal(t, 4, out.Attempts)

	require.Len(t, seen, 4)
	assert.Error(t, seen[0].Err)
	assert.Equal(t, 10, seen[0].Max)
	assert.NoError(t, seen[3].Err)
}

func TestPollUnrecognizedKeepsPolling(t *testing.T) {
	caller := clienttest.New(record(99, nil), record("queued", nil), record("succeed", nil))
	out, err := New(caller, Options{}).Poll(context.Background(), handle, fast(5))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.State)
	assert.Equal(t, 3, out.Attempts)
}

func TestPollEmptyRecordIsPending(t *testing.T) {
	caller := clienttest.New(
		clienttest.OK(map[string]any{}),
		clienttest.OK(map[string]any{string(handle): map[string]any{}}),
		clienttest.OK(nil),
		record(50, nil),
	)
	out, err := New(caller, Options{}).Poll(context.Background(), handle, fast(5))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.State)
	assert.Equal(t, 4, out.Attempts)
}

func TestPollHistoryListFallback(t *testing.T) {
	caller := clienttest.New(clienttest.OK(map[string]any{
		"history_list": []any{map[string]any{"status": 50}},
	}))
	out, err := New(caller, Options{}).Poll(context.Background(), handle, fast(3))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.State)
}

func TestPollSendsQueryBody(t *testing.T) {
	caller := clienttest.New(record(50, nil))
	_, err := New(caller, Options{}).Poll(context.Background(), handle, fast(1))
	require.NoError(t, err)

	call := caller.Last()
	assert.Equal(t, client.OpQuery.Name, call.Op.Name)
	assert.Equal(t, []any{string(handle)}, call.Body["submit_ids"])
	assert.Equal(t, true, call.Body["need_batch"])
	assert.Equal(t, []any{}, call.Body["history_ids"])
}

func TestPollCancellation(t *testing.T) {
	caller := clienttest.New(record(20, nil))
	ctx, cancel := context.WithCancel(context.Background())

	p := New(caller, Options{OnAttempt: func(a Attempt) {
		if a.N == 1 {
			cancel()
		}
	}})

	out, err := p.Poll(ctx, handle, Budget{MaxAttempts: 100, Interval: time.Hour})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, models.Outcome{}, out)
	assert.Equal(t, 1, caller.Count())
}

func TestPollCancelDuringWait(t *testing.T) {
	caller := clienttest.New(record(20, nil))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := New(caller, Options{}).Poll(ctx, handle, Budget{MaxAttempts: 5, Interval: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, caller.Count())
}

func TestPollWallClockTimeout(t *testing.T) {
	caller := clienttest.New(record(20, nil))
	out, err := New(caller, Options{}).Poll(context.Background(), handle, Budget{
		MaxAttempts: 1000,
		Interval:    10 * time.Millisecond,
		Timeout:     35 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimedOut, out.State)
	assert.Less(t, out.Attempts, 1000)
}

func TestPollRejectsBadBudget(t *testing.T) {
	caller := clienttest.New(record(50, nil))
	_, err := New(caller, Options{}).Poll(context.Background(), handle, Budget{})
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	assert.Zero(t, caller.Count())
}

func TestQuerySurfacesErrors(t *testing.T) {
	caller := clienttest.New(clienttest.Fail(apierr.Transport("query", 0, errors.New("dial tcp: refused"))))
	_, _, err := New(caller, Options{}).Query(context.Background(), handle)
	assert.True(t, apierr.IsKind(err, apierr.KindTransport))
}

func TestQueryClassifies(t *testing.T) {
	caller := clienttest.New(record(45, nil))
	st, rec, err := New(caller, Options{}).Query(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, models.PhasePending, st.Phase)
	assert.NotNil(t, rec)
}
