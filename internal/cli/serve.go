package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sufield/mvrp/internal/adapters/metrics"
	"github.com/sufield/mvrp/internal/config"
	"github.com/sufield/mvrp/internal/shutdown"
	"github.com/sufield/mvrp/pkg/mvrp"
)

const metricsReadHeaderTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an MVRP server",
		Long: `Run an MVRP server.

The server presents --cert and --key to every client. With --client-auth
require it also demands a client certificate issued by --client-ca (or --ca),
and with --peer-id that certificate must carry the given SPIFFE ID.

Examples:
  mvrp serve --address 127.0.0.1:8443 --key server.key --cert server.crt
  mvrp serve --config mvrp.yaml --metrics-address 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	f := cmd.Flags()
	f.String("address", "", "Address to listen on (required)")
	f.String("key", "", "Server private key (PEM)")
	f.String("cert", "", "Server certificate (PEM)")
	f.String("ca", "", "CA certificate; the client anchor under --client-auth require")
	f.String("client-auth", "none", "Client certificate policy (none, require)")
	f.String("client-ca", "", "CA certificate that client certificates must chain to")
	f.String("peer-id", "", "SPIFFE ID every client certificate must carry")
	f.Int("max-message-size", 1024, "Largest request read in one go, in bytes")
	f.String("body-mode", "last-line", "Where the request body is taken from (last-line, content-length)")
	f.Int("max-connections", 0, "In-flight connection limit, 0 for none")
	f.Duration("handshake-timeout", 0, "TLS handshake timeout, 0 for none")
	f.Duration("read-timeout", 0, "Request read timeout, 0 for none")
	f.Duration("write-timeout", 0, "Response write timeout, 0 for none")
	f.Duration("shutdown-grace", config.DefaultShutdownGrace, "How long in-flight connections get on shutdown")
	f.String("metrics-address", "", "Serve Prometheus metrics on this address")

	_ = cmd.MarkFlagFilename("key", "pem", "key")
	_ = cmd.MarkFlagFilename("cert", "pem", "crt")
	_ = cmd.MarkFlagFilename("ca", "pem", "crt")
	_ = cmd.MarkFlagFilename("client-ca", "pem", "crt")
	_ = cmd.RegisterFlagCompletionFunc("client-auth", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"none\tDo not request client certificates", "require\tRequire and verify client certificates"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("body-mode", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"last-line", "content-length"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	loader, err := loaderFor(cmd)
	if err != nil {
		return err
	}
	cfg, err := loader.LoadServer()
	if err != nil {
		return classify(err)
	}
	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}

	opts := []mvrp.ServerOption{mvrp.WithLogger(logger)}
	if cfg.MetricsAddress != "" {
		opts = append(opts, mvrp.WithMetrics(metrics.NewPrometheusMetrics()))
	}
	srv, err := mvrp.NewServer(cfg, opts...)
	if err != nil {
		return classify(err)
	}

	// The metrics listener is bound first so a bad metrics address fails
	// before anything is served.
	var metricsLn net.Listener
	if cfg.MetricsAddress != "" {
		var lc net.ListenConfig
		metricsLn, err = lc.Listen(cmd.Context(), "tcp", cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("%w: listen on metrics address %s: %v", ErrRuntime, cfg.MetricsAddress, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := shutdown.NewCoordinator(shutdown.Config{
		GracePeriod: cfg.ShutdownGrace,
		Logger:      logger,
		OnShutdownComplete: func(error) {
			logger.Info("Final connection counts", "stats", srv.Stats())
		},
	})
	coordinator.RegisterServer("mvrp", srv)
	// A second signal during the grace period kills the process.
	coordinator.RegisterCleanupFunc(func() error {
		stop()
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return classify(srv.ListenAndServe(gctx))
	})

	if metricsLn != nil {
		httpSrv := &http.Server{
			Handler:           metricsMux(srv),
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		}
		coordinator.RegisterServer("metrics", httpSrv)
		logger.Info("Metrics endpoint listening", "address", metricsLn.Addr().String())
		g.Go(func() error {
			if err := httpSrv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%w: metrics endpoint: %v", ErrRuntime, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if err := coordinator.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("%w: shutdown: %v", ErrRuntime, err)
		}
		return nil
	})

	return g.Wait()
}

func metricsMux(srv *mvrp.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(srv.Stats())
	})
	return mux
}
