package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/use-agent/pricewatch/api"
	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/compare"
	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/extractor"
	"github.com/use-agent/pricewatch/match"
	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/query"
	"github.com/use-agent/pricewatch/scraper"
	"github.com/use-agent/pricewatch/search"
	"github.com/use-agent/pricewatch/vocab"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("pricewatch starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engine", cfg.Browser.Engine,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	// ── 3. Load vocabulary and retailer profiles ────────────────────
	v, err := vocab.Load(cfg.Matcher.VocabularyFile)
	if err != nil {
		slog.Error("failed to load vocabulary", "error", err)
		os.Exit(1)
	}
	profiles, err := platform.LoadProfiles(cfg.Scraper.ProfilesFile)
	if err != nil {
		slog.Error("failed to load retailer profiles", "error", err)
		os.Exit(1)
	}

	// ── 4. Session pool (browsers start lazily on first use) ────────
	pacer := scraper.NewPacer(cfg.Scraper.HostRate)
	pool := engine.NewSessionPool(cfg.Browser.MaxSessions, cfg.Pool, cfg.Browser.Engine, sessionFactory(cfg, pacer))
	defer pool.Stop()

	cooldown := engine.NewCooldown(cfg.Scraper.BlockCooldown)
	defer cooldown.Stop()

	// ── 5. Comparison pipeline ──────────────────────────────────────
	orch := compare.New(
		pool,
		extractor.New(profiles),
		query.New(v, profiles),
		search.New(profiles, match.New(v, cfg.Matcher.Threshold), search.Options{
			ResultWait:    cfg.Scraper.ResultWait,
			MaxCandidates: cfg.Matcher.MaxCandidates,
		}),
		cooldown,
	)

	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Stop()

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(orch, pool, cfg, cc, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.WithCORS(router, cfg.CORS),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Comparisons can run for minutes; give in-flight ones a bounded drain.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// pool.Stop() runs via defer and disposes every browser session.
	slog.Info("pricewatch stopped")
}

// sessionFactory builds sessions for the configured engine.
func sessionFactory(cfg *config.Config, pacer *scraper.Pacer) engine.SessionFactory {
	if cfg.Browser.Engine == "http" {
		fetcher := scraper.NewHTTPFetcher(cfg.Browser.DefaultProxy, cfg.Browser.UserAgent)
		return func() scraper.Session {
			return scraper.NewDocumentSession(fetcher, cfg.Scraper, pacer)
		}
	}
	return func() scraper.Session {
		return scraper.NewRodSession(cfg.Browser, cfg.Scraper, pacer)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
