package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/btouchard/sprintdesk/internal/api"
	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/board"
	"github.com/btouchard/sprintdesk/internal/config"
	"github.com/btouchard/sprintdesk/internal/github"
	sdmcp "github.com/btouchard/sprintdesk/internal/mcp"
	"github.com/btouchard/sprintdesk/internal/notify"
	"github.com/btouchard/sprintdesk/internal/store"
	"github.com/btouchard/sprintdesk/internal/sync"
	"github.com/btouchard/sprintdesk/internal/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sprintdesk server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		setupLogging(cfg)

		slog.Info("starting sprintdesk",
			"version", version,
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"config_files", cfg.Sources)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return run(ctx, cfg)
	},
}

// app is the service graph shared by the server and the one-shot commands.
type app struct {
	store  *store.SQLiteStore
	tokens *token.Provider
	hub    *notify.Hub
	engine *sync.Engine
	board  *board.Service
	access *auth.Access
}

func openApp(cfg *config.Config) (*app, error) {
	dbPath := config.ExpandHome(cfg.Database.Path)
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	slog.Info("database opened", "path", dbPath)

	client, err := github.NewClient(github.Config{
		APIURL:    cfg.GitHub.APIURL,
		UserAgent: cfg.GitHub.UserAgent,
		Timeout:   cfg.GitHub.Timeout,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	hub := notify.NewHub(notify.LogNotifier{})
	tokens := token.NewProvider(db, client, token.Config{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		TokenURL:     cfg.GitHub.TokenURL,
	})
	engine := sync.NewEngine(db, client, hub, sync.Config{
		IssueState:       cfg.Sync.IssueState,
		EventsPageSize:   cfg.GitHub.EventsPageSize,
		ClassConcurrency: cfg.Sync.ClassConcurrency,
	})

	return &app{
		store:  db,
		tokens: tokens,
		hub:    hub,
		engine: engine,
		board:  board.NewService(db, client),
		access: auth.NewAccess(db),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// --- Sessions ---
	secret, err := auth.LoadOrCreateSecret(config.ExpandHome(cfg.Auth.KeyDir))
	if err != nil {
		return fmt.Errorf("loading session key: %w", err)
	}
	sessions := auth.NewSessions(a.store, secret, cfg.Auth.SessionTTL)
	go sessions.StartCleanupLoop(ctx.Done())

	// --- MCP Server ---
	var mcpHTTP http.Handler
	if cfg.MCP.Enabled {
		mcpServer := sdmcp.NewServer(&sdmcp.Deps{
			Store:   a.store,
			Access:  a.access,
			Tokens:  a.tokens,
			Engine:  a.engine,
			Board:   a.board,
			Version: version,
		})
		a.hub.Add(notify.NewMCPNotifier(mcpServer, 3*time.Second))
		mcpHTTP = server.NewStreamableHTTPServer(mcpServer)
	}

	// --- HTTP Router ---
	router := api.NewRouter(api.Deps{
		Store:    a.store,
		Sessions: sessions,
		Access:   a.access,
		Tokens:   a.tokens,
		Engine:   a.engine,
		Board:    a.board,
		MCP:      mcpHTTP,
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sprintdesk is ready", "addr", addr, "mcp", cfg.MCP.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
