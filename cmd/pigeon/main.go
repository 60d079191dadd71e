package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/siosw/pigeon"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pigeon",
	Short: "Pigeon - a single-user chat-driven task orchestrator",
	Long: `Pigeon connects a Telegram chat to two AI agent contexts: an
interactive one answering messages and a background one executing queued
tasks, sharing a weekly memory log and a durable task queue.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to pigeon.yaml")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	log := pigeon.NewFmtLogger()

	cfg, err := pigeon.LoadConfig(configPath)
	if err != nil {
		// Configuration errors are fatal before anything initializes.
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store := pigeon.NewStore(filepath.Join(cfg.DataDir, "tasks.json"), log)
	memory, err := pigeon.NewMemory(filepath.Join(cfg.DataDir, "memory"), log)
	if err != nil {
		return err
	}
	toolkit := pigeon.NewToolkit(memory, store, log)

	runStatePath := filepath.Join(cfg.DataDir, "runstate.json")
	prevShutdown := "unknown"
	if st, ok := pigeon.ReadRunState(runStatePath); ok {
		prevShutdown = fmt.Sprintf("%s after %s", st.Signal, time.Duration(st.UptimeSeconds)*time.Second)
	}
	log.Infof("previous shutdown: %s", prevShutdown)

	interactive := pigeon.NewSessionCell(func() pigeon.Agent {
		return pigeon.NewHTTPAgent(pigeon.HTTPAgentConfig{
			BaseURL:      cfg.APIBase,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			SystemPrompt: pigeon.InteractiveSystemPrompt,
			Tools:        toolkit,
		})
	})
	background := pigeon.NewSessionCell(func() pigeon.Agent {
		return pigeon.NewHTTPAgent(pigeon.HTTPAgentConfig{
			BaseURL:      cfg.APIBase,
			APIKey:       cfg.APIKey,
			Model:        cfg.BackgroundModel,
			SystemPrompt: pigeon.BackgroundSystemPrompt,
			Tools:        toolkit,
		})
	})

	gateway, err := pigeon.NewGateway(pigeon.GatewayConfig{
		Token:          cfg.TelegramToken,
		AuthorizedUser: cfg.AuthorizedUser,
		PrevShutdown:   prevShutdown,
		Logger:         log,
	}, store, memory, interactive)
	if err != nil {
		return err
	}

	dispatcher := pigeon.NewDispatcher(interactive, gateway, pigeon.DispatcherConfig{Logger: log})
	gateway.OnText = func(chatID int64, text string) {
		if err := dispatcher.Enqueue(chatID, text); err != nil {
			log.Warnf("enqueue rejected: %v", err)
		}
	}

	// Completed background tasks report back to the authorized chat. In a
	// direct conversation the chat id equals the user id.
	worker := pigeon.NewWorker(store, background, interactive, func(text string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := gateway.Send(ctx, cfg.AuthorizedUser, text); err != nil {
			log.Warnf("task notification failed: %v", err)
		}
	}, pigeon.WorkerConfig{
		IdleInterval:  cfg.IdleInterval,
		DrainInterval: cfg.DrainInterval,
		Logger:        log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startedAt := time.Now()
	if err := gateway.Start(ctx); err != nil {
		return err
	}
	worker.Start()
	log.Infof("pigeon is up, serving user %d", cfg.AuthorizedUser)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received %s, shutting down", sig)

	cancel()
	worker.Stop()
	dispatcher.Stop()
	interactive.Dispose()
	background.Dispose()

	if err := pigeon.WriteRunState(runStatePath, sig.String(), time.Since(startedAt)); err != nil {
		log.Warnf("cannot write run state: %v", err)
	}
	return nil
}
