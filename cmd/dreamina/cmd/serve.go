package cmd

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"

	"github.com/psantana5/dreamina/pkg/auth"
	"github.com/psantana5/dreamina/pkg/gateway"
	"github.com/psantana5/dreamina/pkg/ratelimit"
	"github.com/psantana5/dreamina/pkg/shutdown"
	tlsutil "github.com/psantana5/dreamina/pkg/tls"
)

var (
	serveAddr       string
	serveTLSCert    string
	serveTLSKey     string
	serveSelfSigned bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP gateway",
	Long: `Serve the job API over HTTP:

  POST /jobs            submit a job (?wait=true blocks until it finishes)
  GET  /jobs/{handle}   query a job once
  POST /uploads         upload an image
  GET  /history         list submitted jobs
  GET  /models          list the model catalog
  GET  /health          liveness
  GET  /metrics         Prometheus metrics

When gateway_api_key_hashes is set, every route except /health needs
"Authorization: Bearer <key>". Create keys with 'dreamina config hash-key'.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from listen_addr)")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
	serveCmd.Flags().BoolVar(&serveSelfSigned, "self-signed", false, "generate a self-signed certificate when none is configured")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = settings.ListenAddr
	}
	tlsConfig, err := serverTLS()
	if err != nil {
		return err
	}

	ctx, stop := shutdown.SignalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	verifier := auth.NewVerifier(settings.APIKeyHashes...)
	if !verifier.Enabled() {
		logger.Warn().Msg("gateway_api_key_hashes is empty, API key checks are off")
	}
	srv := gateway.New(gateway.Options{
		Jobs:     a.orch,
		History:  a.history,
		Metrics:  a.metrics,
		Limiter:  ratelimit.NewLimiter(settings.GatewayRPS, settings.GatewayBurst),
		Verifier: verifier,
		Logger:   &logger,
		Version:  version.Version,
	})
	httpServer := srv.HTTPServer(addr, tlsConfig)
	a.cleanup.Register("http server", shutdown.StopHTTPServer(httpServer))

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Bool("tls", tlsConfig != nil).Msg("gateway listening")
		var err error
		if tlsConfig != nil {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("gateway stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info().Msg("shutting down gateway")
		return a.cleanup.Shutdown()
	}
}

// serverTLS resolves the listener's TLS settings from flags, then config.
// nil means plain HTTP.
func serverTLS() (*tls.Config, error) {
	cert, key := serveTLSCert, serveTLSKey
	if cert == "" && key == "" {
		cert, key = settings.TLSCert, settings.TLSKey
	}
	if cert == "" && key == "" && serveSelfSigned {
		dir := filepath.Join(filepath.Dir(settings.Path()), ".dreamina", "tls")
		cert, key = filepath.Join(dir, "gateway.crt"), filepath.Join(dir, "gateway.key")
		if err := ensureSelfSigned(cert, key); err != nil {
			return nil, err
		}
	}
	if cert == "" && key == "" {
		return nil, nil
	}
	if cert == "" || key == "" {
		return nil, fmt.Errorf("both a TLS certificate and key are required")
	}
	return tlsutil.ServerConfig(cert, key)
}

func ensureSelfSigned(cert, key string) error {
	if info, err := os.Stat(cert); err == nil && time.Since(info.ModTime()) < tlsutil.SelfSignedValidity-24*time.Hour {
		if _, err := os.Stat(key); err == nil {
			return nil
		}
	}
	logger.Info().Str("cert", cert).Msg("generating self-signed certificate")
	return tlsutil.GenerateSelfSigned(cert, key)
}

