package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trashtotreasure/treasure/internal/api"
	"github.com/trashtotreasure/treasure/internal/auth"
	"github.com/trashtotreasure/treasure/internal/claim"
	"github.com/trashtotreasure/treasure/internal/media"
	"github.com/trashtotreasure/treasure/internal/metrics"
	"github.com/trashtotreasure/treasure/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	// Without a configured secret, one is generated on first run and kept
	// in the database.
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if secret, err = store.GetJWTSecret(ctx, database); err != nil {
			return err
		}
	}
	if n, err := store.PurgeRevokedTokens(ctx, database, time.Now()); err != nil {
		slog.Warn("purging revoked tokens", "error", err)
	} else if n > 0 {
		slog.Info("purged expired token revocations", "count", n)
	}

	issuer, err := auth.NewIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	mediaStore, err := media.New(cfg.Media.Dir, cfg.Media.MaxFileBytes)
	if err != nil {
		return err
	}

	m := metrics.New()
	claims := claim.New(database,
		claim.WithMetrics(m),
		claim.WithLogger(slog.Default()),
		claim.WithDirectClaimCascade(cfg.Claims.DirectClaimCascade),
		claim.WithCascadeRetries(cfg.Claims.CascadeRetries),
	)

	handler := api.NewRouter(api.Deps{
		DB:                  database,
		Issuer:              issuer,
		Claims:              claims,
		Media:               mediaStore,
		Metrics:             m,
		Mailer:              auth.LogMailer{Logger: slog.Default()},
		BaseURL:             cfg.Server.BaseURL,
		CORSOrigin:          cfg.Server.CORSOrigin,
		OTPTTL:              cfg.Auth.OTPTTL,
		RequireVerification: cfg.Auth.RequireVerification,
		MaxFiles:            cfg.Media.MaxFiles,
		MaxFileBytes:        cfg.Media.MaxFileBytes,
		AuthRateLimit:       cfg.Auth.RateLimit,
		AuthRateBurst:       cfg.Auth.RateBurst,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go claims.RunReconciler(ctx, cfg.Claims.ReconcileInterval)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}

	slog.Info("server stopped, closing database")
	return nil
}
