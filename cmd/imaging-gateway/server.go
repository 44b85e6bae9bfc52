package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gcasillas/clinical-imaging/internal/config"
	"github.com/gcasillas/clinical-imaging/internal/platform/events"
	"github.com/gcasillas/clinical-imaging/internal/platform/hl7v2"
	"github.com/gcasillas/clinical-imaging/internal/server"
)

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := server.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
		return err
	}
	defer store.Close()

	gw, err := server.New(cfg, store, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build gateway")
		return err
	}

	if cfg.KafkaEnabled() {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer pub.Close()
		gw.Admissions.AddPublisher(pub)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka publishing enabled")
	}

	go func() {
		if err := gw.RunFeed(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("admission feed stopped")
		}
	}()

	if cfg.MLLPAddr != "" {
		mllp := hl7v2.NewMLLPServer(cfg.MLLPAddr, gw.Admissions.MLLPHandler(), logger)
		if err := mllp.Start(); err != nil {
			logger.Error().Err(err).Str("addr", cfg.MLLPAddr).Msg("failed to start MLLP listener")
			return err
		}
		defer func() {
			if err := mllp.Stop(); err != nil {
				logger.Warn().Err(err).Msg("MLLP shutdown")
			}
		}()
		logger.Info().Str("addr", mllp.Addr()).Msg("MLLP listener started")
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("starting imaging gateway")
		if err := gw.Echo.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return gw.Echo.Shutdown(shutdownCtx)
}
