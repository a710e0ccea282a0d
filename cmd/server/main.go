// Package main - Messenger bot webhook server entry point
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"messenger-bot/internal/adapters/gateway"
	"messenger-bot/internal/adapters/handler"
	"messenger-bot/internal/adapters/websocket"
	"messenger-bot/internal/config"
	"messenger-bot/internal/core/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "path to env file")
	flag.Parse()

	mainCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := config.LoadFromEnv(*envFile)
	if err != nil {
		log.Fatalf("could not load settings: %s", err)
	}

	// 2. Logger, optionally mirrored to the live log stream
	level, _ := zerolog.ParseLevel(cfg.App.LogLevel)
	zerolog.SetGlobalLevel(level)
	stdoutLogger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "messenger-bot").Logger()

	var hub *websocket.LogHub
	var out io.Writer = os.Stdout
	if cfg.App.LogStreamSecret != "" {
		hub = websocket.NewLogHub(cfg.App.LogStreamSecret, stdoutLogger)
		out = zerolog.MultiLevelWriter(os.Stdout, hub)
	}
	logger := zerolog.New(out).With().Timestamp().Str("app", "messenger-bot").Logger()

	if !cfg.Messenger.HasAccessToken() {
		logger.Error().Msg("Missing PAGE_ACCESS_TOKEN env var, replies will not be sent")
	}
	if cfg.Messenger.VerifyToken == "" {
		logger.Warn().Msg("VERIFY_TOKEN is empty, webhook verification will always fail")
	}

	// 3. Adapters and services
	client := gateway.NewMessengerClient(cfg.Messenger, logger)
	dispatcher := services.NewDispatcher(client, logger)

	deps := handler.RouterDeps{
		Webhook: handler.NewWebhookHandler(dispatcher, cfg.Messenger, logger),
		System:  handler.NewSystemHandler(logger),
		Logger:  logger,
	}
	if hub != nil {
		deps.LogHub = hub.ServeWS
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 4. Run until a signal arrives
	group, groupCtx := errgroup.WithContext(mainCtx)

	if hub != nil {
		group.Go(func() error {
			hub.Run(groupCtx)
			return nil
		})
	}

	group.Go(func() error {
		logger.Info().Int("port", cfg.App.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("Received signal, shutting down...")

		// In-flight deliveries finish their sends before the server closes
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(ctx)
	})

	if err := group.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed.")
	}
	logger.Info().Msg("Server stopped.")
}
