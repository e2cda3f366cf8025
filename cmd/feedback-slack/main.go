package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/builder-feedback/feedback-slack/db"
	"github.com/builder-feedback/feedback-slack/internal/auth"
	"github.com/builder-feedback/feedback-slack/internal/config"
	"github.com/builder-feedback/feedback-slack/internal/handlers"
	"github.com/builder-feedback/feedback-slack/internal/logger"
	"github.com/builder-feedback/feedback-slack/internal/router"
	"github.com/builder-feedback/feedback-slack/internal/scheduler"
	"github.com/builder-feedback/feedback-slack/internal/services"
	"github.com/builder-feedback/feedback-slack/internal/store"
	"github.com/builder-feedback/feedback-slack/internal/wizard"
)

func main() {
	setup := flag.Bool("setup", false, "run the interactive Slack setup wizard")
	envFile := flag.String("env-file", ".env", "file the setup wizard writes its settings to")
	devToken := flag.String("dev-token", "", "print a 24h session token for this user id (development only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *devToken != "" {
		if err := printDevToken(os.Stdout, cfg, *devToken); err != nil {
			slog.Error("failed to issue dev token", "error", err)
			os.Exit(1)
		}
		return
	}

	if *setup {
		if err := runSetup(ctx, cfg, *envFile); err != nil {
			slog.Error("setup failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func runSetup(ctx context.Context, cfg config.Config, envFile string) error {
	w := wizard.New(services.NewWebhookClient(nil), services.NewMessageBuilder(cfg.BaseURL))

	result, err := wizard.NewRunner(w, os.Stdin, os.Stdout, cfg.RedirectURI()).Run(ctx)
	if err != nil {
		return err
	}

	if err := wizard.WriteEnv(result.Config, envFile); err != nil {
		return err
	}

	slog.Info("slack settings written", "file", envFile)
	return nil
}

// printDevToken mints the session the host app would normally issue, for calling
// /api/ws and the notifications list locally.
func printDevToken(w io.Writer, cfg config.Config, userID string) error {
	if !cfg.IsDevelopment() {
		return fmt.Errorf("-dev-token is only available when ENV=development")
	}

	signer, err := auth.NewSigner(cfg.JWTSecret)
	if err != nil {
		return err
	}

	token, err := signer.GenerateJWT(userID, 24*time.Hour)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, token)
	return err
}

func runServer(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	conn, err := db.ConnectDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	if err := db.MigrateDatabase(conn); err != nil {
		return err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	slog.Info("database connected")

	signer, err := auth.NewSigner(cfg.JWTSecret)
	if err != nil {
		return err
	}

	if cfg.Slack.ClientID == "" || cfg.Slack.ClientSecret == "" {
		slog.Warn("SLACK_CLIENT_ID or SLACK_CLIENT_SECRET is not set, OAuth installs will fail")
	}

	notifications := store.NewNotificationStore(conn)

	if cfg.NotificationRetention > 0 {
		sched := scheduler.NewScheduler(ctx)
		sched.AddJob("notification-retention", 6*time.Hour,
			scheduler.RetentionJob(cfg.NotificationRetention, notifications.PruneBefore))
		defer sched.Stop()
	}

	hub := handlers.NewHub(cfg.AllowedOrigins)

	slackHandler := handlers.NewSlackHandler(handlers.SlackHandlerDeps{
		Slack:         services.NewSlackService(cfg.Slack.ClientID, cfg.Slack.ClientSecret, cfg.RedirectURI()),
		Configs:       store.NewWebhookConfigStore(conn),
		Notifications: notifications,
		States:        signer,
		Hub:           hub,
		Messages:      services.NewMessageBuilder(cfg.BaseURL),
		Commands:      services.NewCommandResponder(cfg.BaseURL, services.StaticQuerier{}),
		BaseURL:       cfg.BaseURL,
		SigningSecret: cfg.Slack.SigningSecret,
	})

	r := router.NewRouter(router.Deps{
		Config:   cfg,
		Signer:   signer,
		Slack:    slackHandler,
		Proxy:    handlers.NewProxyHandler(services.NewWebhookClient(nil)),
		Hub:      hub,
		Database: sqlDB,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
