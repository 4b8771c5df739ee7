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
	"github.com/spf13/cobra"

	"github.com/Dzero1996/Nebula-KTV/internal/backend"
	"github.com/Dzero1996/Nebula-KTV/internal/cache"
	"github.com/Dzero1996/Nebula-KTV/internal/catalog"
	"github.com/Dzero1996/Nebula-KTV/internal/clock"
	"github.com/Dzero1996/Nebula-KTV/internal/config"
	"github.com/Dzero1996/Nebula-KTV/internal/eventbus"
	"github.com/Dzero1996/Nebula-KTV/internal/logbuffer"
	"github.com/Dzero1996/Nebula-KTV/internal/logging"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
	"github.com/Dzero1996/Nebula-KTV/internal/server"
	"github.com/Dzero1996/Nebula-KTV/internal/telemetry"
	"github.com/Dzero1996/Nebula-KTV/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logBuf = logbuffer.New(2000)
)

var rootCmd = &cobra.Command{
	Use:   "ktvplayer",
	Short: "Nebula KTV - synchronized karaoke playback engine",
	Long:  "ktvplayer plays a karaoke video with its original and instrumental audio kept in sync, and exposes a control API for remotes and the player UI.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the player control API",
	Long:  "Start the HTTP control API and websocket event stream in front of the playback engine",
	RunE:  runServe,
}

var serveSong string

func init() {
	serveCmd.Flags().StringVar(&serveSong, "song", "", "catalog song ID to load at startup")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	return nil
}

// engine is the playback stack shared by serve and play.
type engine struct {
	bus     eventbus.Bus
	manager *playback.Manager
	loader  *backend.Loader
	cache   *cache.Cache
}

func newEngine() (*engine, error) {
	bus, err := eventbus.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize event bus: %w", err)
	}

	opener, err := backend.NewOpener(cfg, logger)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	manager := playback.NewManager(playback.Options{
		Clock:             clock.Real{},
		CrossfadeDuration: cfg.CrossfadeDuration,
		DriftTolerance:    cfg.DriftTolerance,
		IdleTimeout:       cfg.IdleHideTimeout,
		Publisher:         bus,
	}, logger)

	eng := &engine{bus: bus, manager: manager}

	catalogClient := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout, logger)
	if cfg.CatalogCacheTTL > 0 {
		// New never fails on an unreachable server; the cache just stays disabled.
		eng.cache, _ = cache.New(cache.Config{
			RedisAddr:      cfg.RedisAddr,
			RedisPassword:  cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			SongAssetsTTL:  cfg.CatalogCacheTTL,
			DisableOnError: true,
		}, logger)
		catalogClient.WithCache(eng.cache)
	}

	eng.loader = backend.NewLoader(catalogClient, opener, logger)
	return eng, nil
}

func (e *engine) Close() error {
	if err := e.manager.Close(); err != nil {
		return err
	}
	if e.cache != nil {
		_ = e.cache.Close()
	}
	return e.bus.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Str("backend", string(cfg.Backend)).Msg("Nebula KTV player starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "ktvplayer",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	eng, err := newEngine()
	if err != nil {
		return err
	}

	srv := server.New(cfg, server.Deps{
		Player: eng.manager,
		Loader: eng.loader,
		Events: eng.bus,
		Logs:   logBuf,
	}, logger)
	srv.DeferClose(eng.Close)

	if serveSong != "" {
		src, err := eng.loader.LoadSong(cmd.Context(), serveSong)
		if err != nil {
			logger.Error().Err(err).Str("song_id", serveSong).Msg("startup song not loaded")
		} else if _, err := eng.manager.Load(cmd.Context(), src); err != nil {
			logger.Error().Err(err).Msg("startup session failed")
		}
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr()).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Nebula KTV player stopped")
	return nil
}
