// Command foundry-assistant runs the project-scoped conversational assistant
// service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/foundryhq/assistant/internal/anthropic"
	"github.com/foundryhq/assistant/internal/config"
	"github.com/foundryhq/assistant/internal/engine"
	"github.com/foundryhq/assistant/internal/logging"
	"github.com/foundryhq/assistant/internal/mcpserver"
	"github.com/foundryhq/assistant/internal/project"
	"github.com/foundryhq/assistant/internal/registry"
	"github.com/foundryhq/assistant/internal/router"
	"github.com/foundryhq/assistant/internal/server"
	"github.com/foundryhq/assistant/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "foundry-assistant:", err)
		os.Exit(1)
	}
}

func run() error {
	log := logging.New(slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Project data and knowledge memory live behind external collaborators;
	// the in-memory implementations stand in until they are wired.
	projects := project.NewMemoryStore()
	knowledge := project.NewMemoryKnowledge()

	reg := registry.New()
	if err := registry.RegisterBuiltins(reg, projects, knowledge); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}

	manager := mcpserver.NewManager(log)

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := manager.Close(closeCtx); err != nil {
			log.Warn("Tool server shutdown incomplete", "error", err)
		}
	}()

	reloadServers := func(ctx context.Context) error {
		configs, err := config.LoadServers(cfg.MCPConfigPath)
		if err != nil {
			return err
		}

		return manager.Reload(ctx, configs)
	}

	var stopWatch func() error

	if cfg.MCPConfigPath != "" {
		if err := reloadServers(ctx); err != nil {
			return fmt.Errorf("load tool servers: %w", err)
		}

		if err := manager.ConnectAll(ctx); err != nil {
			log.Warn("Some tool servers failed to connect", "error", err)
		}

		stopWatch, err = config.WatchServers(log, cfg.MCPConfigPath, func(configs []mcpserver.ServerConfig) {
			reloadCtx, cancel := context.WithTimeout(context.Background(), mcpserver.DefaultConnectTimeout)
			defer cancel()

			if err := manager.Reload(reloadCtx, configs); err != nil {
				log.Warn("Tool server reload failed", "error", err)

				return
			}

			if err := manager.ConnectAll(reloadCtx); err != nil {
				log.Warn("Some tool servers failed to reconnect", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("watch tool server config: %w", err)
		}

		defer func() { _ = stopWatch() }()
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()

		sessions = session.NewRedisStore(client, "foundry")
		log.Info("Using Redis session store", "addr", cfg.RedisAddr)
	} else {
		sessions = session.NewMemoryStore()
	}

	var anthropicOpts []anthropic.Option
	if cfg.AnthropicBaseURL != "" {
		anthropicOpts = append(anthropicOpts, anthropic.WithBaseURL(cfg.AnthropicBaseURL))
	}

	completions := anthropic.New(log, cfg.AnthropicAPIKey, anthropicOpts...)

	toolRouter := router.New(log, reg, manager, router.WithTimeout(cfg.ToolTimeout))
	eng := engine.New(log, completions, toolRouter, sessions,
		engine.WithMaxToolRounds(cfg.MaxToolRounds))

	srv := server.New(log, server.Config{
		Addr:          cfg.Addr,
		DefaultModel:  cfg.DefaultModel,
		Engine:        eng,
		Sessions:      sessions,
		Projects:      projects,
		Servers:       manager,
		ReloadServers: reloadServers,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	log.Info("Assistant service started", "addr", cfg.Addr, "model", cfg.DefaultModel)

	return g.Wait()
}
