// Package client performs the vendor's POST-JSON RPC calls. It knows nothing
// about job kinds; callers pass an Operation and a body.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/logging"
	"github.com/psantana5/dreamina/pkg/metrics"
	"github.com/psantana5/dreamina/pkg/ratelimit"
	"github.com/psantana5/dreamina/pkg/tracing"
)

const (
	DefaultBaseURL = "https://jimeng.jianying.com"
	DefaultPPEEnv  = "ppe_upload_image_api"
	DefaultAppID   = "513695"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 512
)

// Caller is what the submitter and poller depend on. *Client implements it;
// tests use clienttest.Caller.
type Caller interface {
	Call(ctx context.Context, op Operation, body any, timeout time.Duration) (*Response, error)
}

// Options configures the client.
type Options struct {
	BaseURL        string
	Cookie         string
	PPEEnv         string
	AppID          string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *logging.Logger
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Recorder
	Tracer         *tracing.Provider
}

// Client sends authenticated requests to the vendor API. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	cookie     string
	ppeEnv     string
	appID      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
	limiter    *ratelimit.Limiter
	metrics    *metrics.Recorder
	tracer     *tracing.Provider
}

var _ Caller = (*Client)(nil)

// New constructs a client with defaults for everything but the cookie.
func New(opts Options) (*Client, error) {
	cookie := strings.TrimSpace(opts.Cookie)
	if cookie == "" {
		return nil, apierr.Validation("cookie not configured (set DREAMINA_COOKIE or run 'dreamina config set --cookie')")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, apierr.Validation("invalid base url %q: %v", baseURL, err)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		cookie:     cookie,
		ppeEnv:     defaultString(opts.PPEEnv, DefaultPPEEnv),
		appID:      defaultString(opts.AppID, DefaultAppID),
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logging.OrDiscard(opts.Logger),
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
	}, nil
}

// BaseURL returns the resolved service root.
func (c *Client) BaseURL() string { return c.baseURL }

// Call posts body to op and returns the decoded envelope. timeout <= 0 uses
// the client default. There are no retries.
func (c *Client) Call(ctx context.Context, op Operation, body any, timeout time.Duration) (resp *Response, err error) {
	ctx, span := c.tracer.StartSpan(ctx, "client.call", attribute.String("operation", op.Name))
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = apierr.KindOf(err).String()
			tracing.SetError(ctx, err)
		}
		c.metrics.ObserveAPICall(op.Name, result, time.Since(start))
		span.End()
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apierr.Validation("encode %s request: %v", op.Name, err)
	}

	if err := c.limiter.Wait(ctx, op.Name); err != nil {
		return nil, apierr.Transport(op.Name, 0, err)
	}

	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(op), bytes.NewReader(payload))
	if err != nil {
		return nil, apierr.Transport(op.Name, 0, fmt.Errorf("build request: %w", err))
	}
	c.setHeaders(req)

	c.logger.Debug().Str("op", op.Name).Int("bytes", len(payload)).Msg("calling remote api")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Transport(op.Name, 0, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierr.Transport(op.Name, httpResp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, apierr.Transport(op.Name, httpResp.StatusCode,
			fmt.Errorf("status %d: %s", httpResp.StatusCode, truncate(raw, maxErrorBody)))
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apierr.Protocol(op.Name, "response is not valid JSON", err)
	}

	if !decoded.Ret.Present {
		if op.RequireRet {
			return nil, apierr.Protocol(op.Name, "response has no ret field", nil)
		}
	} else if !decoded.Ret.OK() {
		return nil, apierr.API(op.Name, decoded.Ret.Value, decoded.message())
	}

	c.logger.Debug().
		Str("op", op.Name).
		Int("status", httpResp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("remote api call completed")

	return &decoded, nil
}

func (c *Client) endpoint(op Operation) string {
	u := c.baseURL + op.Path
	if op.WithAppID {
		u += "?" + url.Values{"aid": {c.appID}}.Encode()
	}
	return u
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-tt-env", c.ppeEnv)
	req.Header.Set("x-use-ppe", "1")
	req.Header.Set("pf", "7")
	req.Header.Set("appid", c.appID)
	req.Header.Set("Cookie", c.cookie)
}

func defaultString(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
