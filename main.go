package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"wabridge/config"
	"wabridge/internal/handlers"
	"wabridge/internal/queue"
	"wabridge/internal/storage"
	"wabridge/internal/store"
	"wabridge/internal/wa"
	"wabridge/internal/webhook"
	"wabridge/pkg/logger"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	paused := store.NewPausedContacts(db)
	autoReply := store.NewAutoReplyLog(db)
	settings := store.NewSettings(db)
	runtime := config.NewRuntime(cfg, settings)

	markers := wa.NewSendMarkers()
	session := wa.NewGateway(cfg.GatewayURL, cfg.GatewayToken)
	client := wa.NewClient(session, markers, paused, runtime.PauseDuration, cfg.QRToTerminal)
	sender := wa.NewSender(session, markers)

	publisher, err := queue.Connect(cfg.RabbitURL, cfg.RabbitQueue, cfg.RabbitQueuePrefix)
	if err != nil {
		log.Error().Err(err).Msg("RabbitMQ unavailable, continuing without queue mirroring")
	}
	defer publisher.Close()

	uploader, err := storage.New(cfg.S3)
	if err != nil {
		log.Error().Err(err).Msg("S3 offload unavailable, continuing with base64 media only")
	}

	dispatcher := webhook.NewDispatcher(
		session, markers, paused, autoReply,
		webhook.NewDeliverer(), runtime, publisher, uploader,
	)
	client.OnMessage(dispatcher.HandleInbound)

	server := handlers.New(cfg, runtime, client, sender, paused, settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bring the session up in the background; failures are recorded in the
	// connection snapshot for the dashboard.
	go func() {
		if err := client.Initialize(context.Background()); err != nil {
			log.Error().Err(err).Msg("Initial session start failed")
		}
	}()

	go sweepLoop(ctx, paused, autoReply)

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: server}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("HTTP server closed")
}

// sweepLoop periodically removes expired pause records and stale auto-reply
// entries. Reads already treat expired rows as absent; the sweep just keeps
// the tables small.
func sweepLoop(ctx context.Context, paused *store.PausedContacts, autoReply *store.AutoReplyLog) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := paused.Sweep(); err != nil {
				log.Warn().Err(err).Msg("Pause sweep failed")
			} else if removed > 0 {
				log.Debug().Int64("removed", removed).Msg("Swept expired pauses")
			}
			if _, err := autoReply.Cleanup(7 * 24 * time.Hour); err != nil {
				log.Warn().Err(err).Msg("Auto-reply log cleanup failed")
			}
		}
	}
}
