package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pointer/pkg/agent"
	"pointer/pkg/api"
	"pointer/pkg/channels"
	_ "pointer/pkg/channels/autoload"
	"pointer/pkg/config"
	"pointer/pkg/gateway"
	"pointer/pkg/handler"
	"pointer/pkg/insert"
	"pointer/pkg/llm"
	_ "pointer/pkg/llm/autoload"
	"pointer/pkg/monitor"
	"pointer/pkg/persist"
	"pointer/pkg/tools"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, system, err := config.Load(configPath, systemPath)
	if err != nil {
		return err
	}
	monitor.SetupSlog(system.LogLevel)
	monitor.PrintBanner()
	if workspacePath != "" {
		cfg.Workspace = workspacePath
	}

	client, err := llm.NewFromConfig(cfg.LLM, system)
	if err != nil {
		return fmt.Errorf("failed to init LLM client: %w", err)
	}
	var mergeClient llm.LLMClient
	if len(cfg.MergeLLM) > 0 {
		if mergeClient, err = llm.NewFromConfig(cfg.MergeLLM, system); err != nil {
			slog.Warn("Merge LLM unavailable, using the chat model", "error", err)
			mergeClient = nil
		}
	}

	backend, err := persist.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}
	defer backend.Close()

	catalog := tools.DefaultCatalog()
	local, err := tools.NewLocalExecutor(cfg.Workspace, catalog,
		tools.WithCommandTimeout(time.Duration(system.ToolTimeoutMs)*time.Millisecond))
	if err != nil {
		return err
	}
	executors := []api.ToolExecutor{local}
	if cfg.ToolBackendURL != "" {
		executors = append(executors, tools.NewRemoteExecutor(cfg.ToolBackendURL, time.Duration(system.ToolTimeoutMs)*time.Millisecond))
	}

	chans := channels.LoadFromConfig(cfg.Channels, channels.Deps{System: system, Sessions: backend.List})
	sinks := insert.MultiSink{insert.NewFileSink(local.Root())}
	for _, ch := range chans {
		if s, ok := ch.(api.DiffSink); ok {
			sinks = append(sinks, s)
		}
	}

	engine, err := agent.NewEngine(agent.Options{
		Client:       client,
		MergeClient:  mergeClient,
		Executor:     tools.NewChainExecutor(executors...),
		Catalog:      catalog,
		Backend:      backend,
		Sink:         sinks,
		Workspace:    local.Root(),
		SystemPrompt: cfg.SystemPrompt,
		System:       system,
	})
	if err != nil {
		return err
	}

	chat := handler.NewChatHandler(engine, backend, time.Duration(system.LLMTimeoutMs)*time.Millisecond)
	engine.SetObserver(chat)

	gw, err := gateway.NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitor(os.Stdout)).
		WithChannel(chans...).
		WithHandler(chat).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reload := config.WatchConfig(ctx, systemPath)
		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-reload:
				if !ok {
					return nil
				}
				next := config.LoadSystemConfig(systemPath)
				engine.SetSystemConfig(next)
				slog.Info("System config reloaded", "file", systemPath)
			}
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Received shutdown signal. Stopping services...")

	gw.StopAll()
	chat.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := engine.Close(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Failed to flush sessions", "error", err)
	}
	slog.Info("Bye!")
	return nil
}
