package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/clanbank/internal/api"
	"github.com/Veraticus/clanbank/internal/certs"
	"github.com/Veraticus/clanbank/internal/cli"
	"github.com/Veraticus/clanbank/internal/ledger"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API used by the chat bot",
		Long: `Serve the ledger over HTTP: JSON endpoints for every ledger operation,
/healthz for keep-alive pings and /metrics for Prometheus.

Requests to /api/v1 need a bearer token from "clanbank token" unless
api.jwt_secret is empty. With api.tls.enabled the server speaks HTTPS using
a self-signed certificate kept in api.tls.dir.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides api.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appCfg
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.API.Addr = addr
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Finishing in-flight requests...")

	return withApp(ctx, func(a *app) error {
		if cfg.Backup.OnStartup {
			a.autoBackup(ctx, "startup")
		}
		if cfg.API.JWTSecret == "" {
			slog.Warn("API authentication is disabled; set api.jwt_secret to require tokens")
		}

		selections := ledger.NewSelectionRegistry(cfg.Ledger.SelectionTTL, time.Now)
		srv := &http.Server{
			Addr: cfg.API.Addr,
			Handler: api.NewRouter(a.engine, selections, api.Config{
				Gatherer:       a.registry,
				JWTSecret:      cfg.API.JWTSecret,
				JWTIssuer:      cfg.API.JWTIssuer,
				RequestTimeout: cfg.API.RequestTimeout,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if cfg.API.TLS.Enabled {
			tlsCfg, err := serverTLSConfig(cfg.API.TLS.Dir, cfg.API.TLS.Hosts)
			if err != nil {
				return err
			}
			srv.TLSConfig = tlsCfg
		}

		return serve(ctx, srv, cfg.API.ShutdownTimeout)
	})
}

func serverTLSConfig(dir string, hosts []string) (*tls.Config, error) {
	cert, err := certs.NewFileManager(dir, hosts).GetOrCreateCertificate()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// serve runs srv until ctx is canceled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if srv.TLSConfig != nil {
			slog.Info("API listening", "addr", srv.Addr, "tls", true)
			err = srv.ListenAndServeTLS("", "")
		} else {
			slog.Info("API listening", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
