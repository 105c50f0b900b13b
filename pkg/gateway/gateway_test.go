package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/auth"
	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/client/clienttest"
	"github.com/psantana5/dreamina/pkg/metrics"
	"github.com/psantana5/dreamina/pkg/middleware"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/orchestrator"
	"github.com/psantana5/dreamina/pkg/ratelimit"
	"github.com/psantana5/dreamina/pkg/store"
)

func imageRecord(status int) map[string]any {
	return map[string]any{
		"status": status,
		"item_list": []any{map[string]any{"image": map[string]any{"large_images": []any{
			map[string]any{"image_url": "https://cdn/1.png", "image_uri": "tos/1"},
		}}}},
	}
}

func newServer(t *testing.T, caller *clienttest.Caller, opts Options) (*Server, store.Store) {
	t.Helper()
	hist := store.NewMemoryStore()
	if opts.Jobs == nil {
		opts.Jobs = orchestrator.New(caller, orchestrator.Options{History: hist})
	}
	if opts.History == nil {
		opts.History = hist
	}
	return New(opts), hist
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateJobReturnsHandle(t *testing.T) {
	caller := clienttest.New(clienttest.OK(map[string]any{"submit_id": "s1"}))
	srv, hist := newServer(t, caller, Options{})

	rec := do(t, srv.Handler(), "POST", "/jobs", `{"kind":"image","prompt":"a cat","ratio":"16:9"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.JobHandle("s1"), resp.Handle)
	assert.Equal(t, models.KindTextToImage, resp.Kind)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	assert.Equal(t, 1, caller.Count())
	assert.Equal(t, "16:9", caller.Last().Body["ratio"])

	e, err := hist.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, store.StateSubmitted, e.State)
}

func TestCreateJobWait(t *testing.T) {
	caller := clienttest.New(
		clienttest.OK(map[string]any{"submit_id": "s1"}),
		clienttest.OK(map[string]any{"s1": map[string]any{"status": 20}}),
		clienttest.OK(map[string]any{"s1": imageRecord(50)}),
	)
	srv, _ := newServer(t, caller, Options{})

	rec := do(t, srv.Handler(), "POST", "/jobs?wait=true&max_attempts=5&interval=1ms", `{"kind":"image","prompt":"cat"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp outcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.OutcomeSucceeded, resp.Outcome.State)
	assert.Equal(t, 2, resp.Outcome.Attempts)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "tos/1", resp.Images[0].ContentURI)
	assert.Nil(t, resp.Video)
}

func TestCreateJobWaitFailed(t *testing.T) {
	caller := clienttest.New(
		clienttest.OK(map[string]any{"submit_id": "v1"}),
		clienttest.OK(map[string]any{"v1": map[string]any{"status": 30, "fail_msg": "blocked"}}),
	)
	srv, _ := newServer(t, caller, Options{})

	rec := do(t, srv.Handler(), "POST", "/jobs?wait=1&interval=1ms",
		`{"kind":"first-frame","first_frame_uri":"tos/1","duration":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp outcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.OutcomeFailed, resp.Outcome.State)
	assert.Equal(t, "blocked", resp.Outcome.Reason)
}

func TestCreateJobErrors(t *testing.T) {
	tests := []struct {
		name   string
		reply  clienttest.Reply
		target string
		body   string
		want   int
		kind   string
	}{
		{"bad json", clienttest.OK(nil), "/jobs", `{`, http.StatusBadRequest, "validation"},
		{"unknown kind", clienttest.OK(nil), "/jobs", `{"kind":"audio"}`, http.StatusBadRequest, "validation"},
		{"upload kind", clienttest.OK(nil), "/jobs", `{"kind":"upload"}`, http.StatusBadRequest, "validation"},
		{"invalid request", clienttest.OK(nil), "/jobs", `{"kind":"image"}`, http.StatusBadRequest, "validation"},
		{"bad budget", clienttest.OK(nil), "/jobs?wait=true&max_attempts=0", `{"kind":"image","prompt":"x"}`, http.StatusBadRequest, "validation"},
		{"api error", clienttest.Fail(apierr.API("image-generate", "1000", "bad cookie")), "/jobs", `{"kind":"image","prompt":"x"}`, http.StatusBadGateway, "api"},
		{"protocol error", clienttest.Fail(apierr.Protocol("image-generate", "not json", nil)), "/jobs", `{"kind":"image","prompt":"x"}`, http.StatusBadGateway, "protocol"},
		{"transport error", clienttest.Fail(apierr.Transport("image-generate", 503, nil)), "/jobs", `{"kind":"image","prompt":"x"}`, http.StatusGatewayTimeout, "transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, clienttest.New(tt.reply), Options{})
			rec := do(t, srv.Handler(), "POST", tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	caller := clienttest.New(clienttest.Fail(apierr.API("image-generate", "1015", "login expired")))
	srv, _ := newServer(t, caller, Options{})
	rec := do(t, srv.Handler(), "POST", "/jobs", `{"kind":"image","prompt":"x"}`)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1015", resp.Code)
}

func TestGetJob(t *testing.T) {
	caller := clienttest.New(clienttest.OK(map[string]any{"s1": imageRecord(50)}))
	srv, _ := newServer(t, caller, Options{})

	rec := do(t, srv.Handler(), "GET", "/jobs/s1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.PhaseSucceeded, resp.Status.Phase)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, client.OpQuery.Name, caller.Last().Op.Name)
	assert.Equal(t, []any{"s1"}, caller.Last().Body["submit_ids"])
}

func TestGetJobPending(t *testing.T) {
	caller := clienttest.New(clienttest.OK(map[string]any{}))
	srv, _ := newServer(t, caller, Options{})

	rec := do(t, srv.Handler(), "GET", "/jobs/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.PhasePending, resp.Status.Phase)
	assert.Empty(t, resp.Images)
}

func TestUploadJSONAndRaw(t *testing.T) {
	caller := clienttest.New(clienttest.OK(map[string]any{"resource_uri": "tos/up"}))
	srv, hist := newServer(t, caller, Options{})
	h := srv.Handler()

	rec := do(t, h, "POST", "/uploads", `{"image_data":"data:image/png;base64,iVBORw=="}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"content_uri":"tos/up"}`, rec.Body.String())
	assert.Equal(t, "iVBORw==", caller.Last().Body["image_data"])

	req := httptest.NewRequest("POST", "/uploads", bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}))
	req.Header.Set("Content-Type", "image/png")
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	require.Equal(t, http.StatusCreated, raw.Code, raw.Body.String())

	entries, err := hist.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "uploads are not recorded")
}

func TestUploadEmpty(t *testing.T) {
	srv, _ := newServer(t, clienttest.New(), Options{})
	req := httptest.NewRequest("POST", "/uploads", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	caller := clienttest.New(
		clienttest.OK(map[string]any{"submit_id": "a"}),
		clienttest.OK(map[string]any{"submit_id": "b"}),
	)
	srv, _ := newServer(t, caller, Options{})
	h := srv.Handler()
	do(t, h, "POST", "/jobs", `{"kind":"image","prompt":"one"}`)
	do(t, h, "POST", "/jobs", `{"kind":"image","prompt":"two"}`)

	rec := do(t, h, "GET", "/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []store.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	rec = do(t, h, "GET", "/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	srv := New(Options{Jobs: orchestrator.New(clienttest.New(), orchestrator.Options{})})
	rec := do(t, srv.Handler(), "GET", "/history", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthAndModels(t *testing.T) {
	srv, _ := newServer(t, clienttest.New(), Options{Version: "1.2.3"})
	h := srv.Handler()

	rec := do(t, h, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)

	rec = do(t, h, "GET", "/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp modelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DefaultImageModel, resp.DefaultModel)
	assert.Contains(t, resp.Ratios, "16:9")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.NewRecorder()
	srv, _ := newServer(t, clienttest.New(), Options{Metrics: rec})
	h := srv.Handler()

	do(t, h, "GET", "/health", "")
	res := do(t, h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `dreamina_gateway_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestAPIKeyRequired(t *testing.T) {
	hash, err := auth.HashKey("k1")
	require.NoError(t, err)
	caller := clienttest.New(clienttest.OK(map[string]any{"submit_id": "s1"}))
	srv, _ := newServer(t, caller, Options{Verifier: auth.NewVerifier(hash)})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "POST", "/jobs", `{"kind":"image","prompt":"x"}`).Code)
	assert.Equal(t, 0, caller.Count())

	req := httptest.NewRequest("POST", "/jobs", strings.NewReader(`{"kind":"image","prompt":"x"}`))
	req.Header.Set("Authorization", "Bearer k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRateLimited(t *testing.T) {
	srv, _ := newServer(t, clienttest.New(), Options{Limiter: ratelimit.NewLimiter(0.001, 1)})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, "GET", "/health", "").Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
