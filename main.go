package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pairkit/server/api"
	"github.com/pairkit/server/config"
	"github.com/pairkit/server/dispatch"
	"github.com/pairkit/server/logger"
	"github.com/pairkit/server/manager"
	"github.com/pairkit/server/middleware"
	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/pairing"
	"github.com/pairkit/server/relay"
	"github.com/pairkit/server/startup"
	"github.com/pairkit/server/user"
	"github.com/pairkit/server/user/sqlite"
	"github.com/pairkit/server/watch"
	"github.com/pairkit/server/ws"
)

var version = "dev"

func newHandler(token string, m *manager.Manager, users user.Store, wsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"pong"}`))
	})

	api.NewSessionHandler(m).Register(mux)
	api.NewAccountHandler(users).Register(mux)

	if wsHandler != nil {
		mux.Handle("GET /ws", wsHandler)
	}

	return middleware.Auth(token)(mux)
}

func summarizeNamespaces(n namespace.Namespaces) string {
	parts := make([]string, 0, len(n))
	for _, key := range n.Keys() {
		parts = append(parts, fmt.Sprintf("%s (%d chains)", key, len(n[key].Chains)))
	}
	return strings.Join(parts, ", ")
}

func main() {
	portFlag := flag.Int("port", 0, "server port (default 8080)")
	tokenFlag := flag.String("auth-token", "", "authentication token (required)")
	devModeFlag := flag.Bool("dev", false, "enable development mode")
	namespacesFlag := flag.String("namespaces", "", "supported namespaces TOML file")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("pairkit %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *portFlag != 0 {
		cfg.Port = *portFlag
	}
	if *tokenFlag != "" {
		cfg.AuthToken = *tokenFlag
	}
	if *devModeFlag {
		cfg.DevMode = true
	}
	if *namespacesFlag != "" {
		cfg.NamespacesFile = *namespacesFlag
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logCloser := logger.Init(logger.Config{
		DataDir: cfg.DataDir,
		DevMode: cfg.DevMode,
	})
	defer logCloser.Close()

	userStore, err := sqlite.Open(cfg.UsersDB())
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer func() {
		if err := userStore.Close(); err != nil {
			slog.Error("user store close error", "error", err)
		}
	}()

	catalog := namespace.NewCatalog(namespace.Default())
	if cfg.NamespacesFile != "" {
		if err := catalog.Reload(cfg.NamespacesFile); err != nil {
			return fmt.Errorf("load namespaces: %w", err)
		}
		configWatcher := watch.NewConfigWatcher(cfg.NamespacesFile, catalog.Reload)
		if err := configWatcher.Start(); err != nil {
			return fmt.Errorf("start config watcher: %w", err)
		}
		defer configWatcher.Stop()
	}

	relayClient := relay.NewClient(relay.Config{
		URL:         cfg.RelayURL,
		ProjectID:   cfg.ProjectID,
		DialTimeout: cfg.RelayDialTimeout,
	}, slog.Default())

	pairingManager := manager.New(manager.Config{
		Transport:   relayClient,
		Catalog:     catalog,
		Pairing:     pairing.Config{TTL: cfg.PairingTTL},
		Signer:      dispatch.RejectingSigner,
		CallTimeout: cfg.CallTimeout,
		SessionTTL:  cfg.SessionTTL,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := pairingManager.Shutdown(ctx); err != nil {
			slog.Error("pairing manager shutdown error", "error", err)
		}
	}()

	// A relay that is down at startup is retried on the first connect.
	if err := pairingManager.Initialize(context.Background()); err != nil {
		slog.Warn("relay unavailable at startup", "error", err)
	}

	sessionWatcher := watch.NewSessionWatcher(pairingManager.Registry())
	if err := sessionWatcher.Start(); err != nil {
		return fmt.Errorf("start session watcher: %w", err)
	}
	defer sessionWatcher.Stop()

	wsHandler := ws.NewRPCHandler(cfg.AuthToken, version, pairingManager, sessionWatcher, cfg.DevMode)
	handler := newHandler(cfg.AuthToken, pairingManager, userStore, wsHandler)

	port := strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	startup.PrintBanner(startup.BannerOptions{
		Version:    version,
		LocalURL:   "http://localhost:" + port,
		RelayURL:   cfg.RelayURL,
		Namespaces: summarizeNamespaces(catalog.Supported()),
		DevMode:    cfg.DevMode,
	})
	startup.PrintFooter()

	slog.Info("server starting", "port", port, "dataDir", cfg.DataDir, "devMode", cfg.DevMode, "relay", cfg.RelayURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	<-shutdownDone
	slog.Info("server stopped")
	return nil
}
