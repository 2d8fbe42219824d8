// Command esi-assembler is a reverse proxy that expands ESI includes in the
// HTML responses of an upstream application.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/esi-assembler/pkg/config"
	"github.com/Sternrassler/esi-assembler/pkg/logging"
	"github.com/rs/zerolog/log"
)

var configFlag = flag.String("config", "", "Path to a YAML config file (optional)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("upstream", cfg.UpstreamURL).
		Str("policy", a.fetcher.Policy().String()).
		Str("cache", cfg.Cache.Provider).
		Bool("debug", cfg.Debug).
		Msg("Starting ESI assembler")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}
