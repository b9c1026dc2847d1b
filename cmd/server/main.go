package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/adapters/egress"
	router "github.com/dkeye/Beam/internal/adapters/http"
	"github.com/dkeye/Beam/internal/adapters/provider"
	"github.com/dkeye/Beam/internal/adapters/rtc"
	"github.com/dkeye/Beam/internal/app"
	"github.com/dkeye/Beam/internal/config"
	"github.com/dkeye/Beam/internal/turncred"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	if cfg.Provider.APIKey == "" {
		log.Warn().Msg("provider API key missing, /create-session will answer 500")
	}
	if cfg.Turn.Secret == "" {
		log.Warn().Msg("TURN secret missing, /turn/creds will answer 500")
	}

	dialer, err := rtc.NewDialer(cfg.ICEURLs)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api setup")
	}

	engine := &app.Engine{
		Registry: app.NewRegistry(),
		Dialer:   dialer,
		Egress: &egress.Adapter{
			API:         provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout),
			DialTimeout: cfg.RTMP.DialTimeout,
		},
	}

	sweeper := &app.Sweeper{
		Engine:      engine,
		Interval:    cfg.Session.SweepInterval,
		IdleTimeout: cfg.Session.IdleTimeout,
	}
	go sweeper.Run(ctx)

	server := &router.Server{
		Bridge:        engine,
		Creds:         turncred.NewIssuer(cfg.Turn.Secret, cfg.Turn.DefaultTTL, cfg.Turn.UserPrefix),
		TurnURL:       cfg.Turn.URL,
		ProviderReady: cfg.Provider.APIKey != "",
	}

	r := server.SetupRouter(cfg.Mode)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Beam bridge started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Active publish sessions cannot survive the process; release them.
	for _, sess := range engine.Registry.Snapshot() {
		engine.Stop(sess.ID)
	}
	log.Info().Msg("Server exited gracefully")
}
