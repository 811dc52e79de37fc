// Package main is the entry point for the sposwiki server.
//
// sposwiki serves a hierarchical course wiki: pages addressed by folder
// paths, stored flat in a document database, with a public read surface
// and an authenticated editing surface. Configuration lives in
// dataDir/config.yaml and is hot-reloaded on change.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/sposlearning/sposwiki/internal/auth"
	"github.com/sposlearning/sposwiki/internal/config"
	"github.com/sposlearning/sposwiki/internal/docstore"
	"github.com/sposlearning/sposwiki/internal/docstore/surreal"
	"github.com/sposlearning/sposwiki/internal/ipgeo"
	"github.com/sposlearning/sposwiki/internal/mirror"
	"github.com/sposlearning/sposwiki/internal/notify"
	"github.com/sposlearning/sposwiki/internal/render"
	"github.com/sposlearning/sposwiki/internal/server"
	"github.com/sposlearning/sposwiki/internal/server/ratelimit"
	"github.com/sposlearning/sposwiki/internal/storage"
	"github.com/sposlearning/sposwiki/internal/upload"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "sposwiki: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg, err := config.Load(*dataDir)
	if err != nil {
		return err
	}
	ll.Set(cfg.Level())
	if err := config.Watch(ctx, *dataDir, func(c *config.Config) {
		ll.Set(c.Level())
	}); err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}

	// Normalize addr: ":8080" becomes "localhost:8080".
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	var store docstore.Store
	switch cfg.Store {
	case "surreal":
		db, err := surreal.Open(cfg.Surreal)
		if err != nil {
			return fmt.Errorf("failed to connect to surrealdb: %w", err)
		}
		defer db.Close()
		store = db
		slog.InfoContext(ctx, "Using SurrealDB store", "url", cfg.Surreal.URL, "ns", cfg.Surreal.Namespace)
	default:
		store = docstore.NewMemStore()
		slog.WarnContext(ctx, "Using in-memory store, data is lost on restart")
	}

	secret, err := base64.StdEncoding.DecodeString(cfg.Auth.JWTSecret)
	if err != nil {
		// Not base64, treat the raw string as the key.
		secret = []byte(cfg.Auth.JWTSecret)
	}
	verifier := auth.NewVerifier(secret, []byte(cfg.Auth.AdminCredentialHash))

	var uploader storage.Uploader
	if cfg.Upload.Endpoint != "" {
		uploader = upload.New(cfg.Upload.Endpoint, cfg.Upload.Preset)
	}

	var changeLog storage.ChangeLog
	if cfg.MirrorDir != "" {
		m, err := mirror.Open(cfg.MirrorDir, "sposwiki", "wiki@localhost")
		if err != nil {
			return fmt.Errorf("failed to open mirror: %w", err)
		}
		changeLog = m
		slog.InfoContext(ctx, "Mirroring page changes", "dir", cfg.MirrorDir)
	}

	var geo storage.GeoResolver
	if cfg.GeoDBPath != "" {
		checker, err := ipgeo.Open(cfg.GeoDBPath)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = checker.Close() }()
		geo = checker
	}

	var notifier *notify.Notifier
	if cfg.Notify.VAPIDPublicKey != "" && cfg.Notify.VAPIDPrivateKey != "" {
		notifier = notify.New(store, notify.VAPIDKeys{
			Public:  cfg.Notify.VAPIDPublicKey,
			Private: cfg.Notify.VAPIDPrivateKey,
		}, cfg.Notify.Subject)
		slog.InfoContext(ctx, "Web push notifications enabled")
	}

	cache := &storage.Cache{}
	pages := storage.NewPageService(store, cache, uploader, changeLog, verifier)
	search := storage.NewSearchService(pages)

	feedbackLimiter := ratelimit.NewLimiter(cfg.RateLimits.FeedbackPerMin, 2)
	defer feedbackLimiter.Close()
	var feedbackNotifier storage.Notifier
	if notifier != nil {
		feedbackNotifier = notifier
	}
	feedback := storage.NewFeedbackService(store, geo, feedbackNotifier, feedbackLimiter)

	srv := server.New(pages, search, feedback, render.New(), verifier, server.Options{
		Notifier:    notifier,
		ReadPerMin:  cfg.RateLimits.ReadPerMin,
		WritePerMin: cfg.RateLimits.WritePerMin,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion())
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	fmt.Printf("sposwiki %s\n", buildVersion())
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	revision := ""
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return info.Main.Version
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}
