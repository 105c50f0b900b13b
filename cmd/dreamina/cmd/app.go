package cmd

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/common/version"

	"github.com/psantana5/dreamina/pkg/client"
	"github.com/psantana5/dreamina/pkg/download"
	"github.com/psantana5/dreamina/pkg/metrics"
	"github.com/psantana5/dreamina/pkg/orchestrator"
	"github.com/psantana5/dreamina/pkg/poller"
	"github.com/psantana5/dreamina/pkg/ratelimit"
	"github.com/psantana5/dreamina/pkg/shutdown"
	"github.com/psantana5/dreamina/pkg/store"
	tlsutil "github.com/psantana5/dreamina/pkg/tls"
	"github.com/psantana5/dreamina/pkg/tracing"
)

// app holds everything a command needs to talk to the API.
type app struct {
	client     *client.Client
	orch       *orchestrator.Orchestrator
	history    store.Store
	downloader *download.Downloader
	metrics    *metrics.Recorder
	cleanup    *shutdown.Manager
}

func newApp(ctx context.Context, onAttempt func(poller.Attempt)) (*app, error) {
	a := &app{
		metrics: metrics.NewRecorder(),
		cleanup: shutdown.New(5*time.Second, &logger),
	}

	tlsConfig, err := tlsutil.ClientConfig(settings.CAFile)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}
	httpClient := &http.Client{Transport: transport}

	tracer, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "dreamina",
		ServiceVersion: version.Version,
		OTLPEndpoint:   settings.OTLPEndpoint,
		Insecure:       true,
		Enabled:        settings.TracingEnabled,
	}, &logger)
	if err != nil {
		return nil, err
	}
	a.cleanup.Register("tracing", tracer.Shutdown)

	var limiter *ratelimit.Limiter
	if settings.APIRateLimit > 0 {
		limiter = ratelimit.NewLimiter(settings.APIRateLimit, 1)
	}

	a.client, err = client.New(client.Options{
		BaseURL:        settings.BaseURL,
		Cookie:         settings.Cookie,
		PPEEnv:         settings.PPEEnv,
		AppID:          settings.AppID,
		RequestTimeout: settings.RequestTimeout,
		HTTPClient:     httpClient,
		Logger:         &logger,
		Limiter:        limiter,
		Metrics:        a.metrics,
		Tracer:         tracer,
	})
	if err != nil {
		a.cleanup.Shutdown()
		return nil, err
	}

	a.history = openHistory()
	if a.history != nil {
		a.cleanup.Register("history", shutdown.CloseResource(a.history))
	}

	a.orch = orchestrator.New(a.client, orchestrator.Options{
		AgentScene: settings.AgentScene,
		Logger:     &logger,
		History:    a.history,
		Metrics:    a.metrics,
		Tracer:     tracer,
		OnAttempt:  onAttempt,
	})
	a.downloader = download.New(download.Options{
		HTTPClient: &http.Client{Transport: transport, Timeout: 5 * time.Minute},
		Logger:     &logger,
		Metrics:    a.metrics,
	})
	return a, nil
}

// openHistory opens the configured store. History is best effort, so a
// failure disables it with a warning.
func openHistory() store.Store {
	if settings.HistoryDriver == "none" {
		return nil
	}
	s, err := store.Open(store.Config{Type: settings.HistoryDriver, DSN: settings.HistoryDSN})
	if err != nil {
		logger.Warn().Err(err).Str("driver", settings.HistoryDriver).Msg("history disabled")
		return nil
	}
	return s
}

func (a *app) Close() {
	if printMetrics {
		a.metrics.WriteText(os.Stderr)
	}
	a.cleanup.Shutdown()
}
