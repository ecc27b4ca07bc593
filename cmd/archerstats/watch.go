package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/archerstats/internal/apiclient"
	"github.com/rewired-gh/archerstats/internal/config"
	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/notify"
	"github.com/rewired-gh/archerstats/internal/observability"
	"github.com/rewired-gh/archerstats/internal/savedata"
	"github.com/rewired-gh/archerstats/internal/server"
	"github.com/rewired-gh/archerstats/internal/storage"
	"github.com/rewired-gh/archerstats/internal/telegram"
	"github.com/rewired-gh/archerstats/internal/tracker"
	"github.com/rewired-gh/archerstats/internal/watcher"
)

func newWatchCmd(opts *options) *cobra.Command {
	var appendSession bool
	var venue string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the save file and record matches as they finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg, appendSession, venue)
		},
	}
	cmd.Flags().BoolVarP(&appendSession, "append", "a", false, "Continue the previous session instead of starting a new one")
	cmd.Flags().StringVar(&venue, "venue", "", "Tag matches with this venue")
	return cmd
}

// alerter is the part of the Telegram client used for pipeline health messages.
type alerter interface {
	SendError(ctx context.Context, err error) error
	SendRecovery(ctx context.Context, failureCount int) error
}

// cycleHealth counts consecutive failed passes and alerts on the first failure and on
// recovery.
type cycleHealth struct {
	alert               alerter
	consecutiveFailures int
}

func (h *cycleHealth) handle(ctx context.Context, outcome tracker.Outcome, err error) {
	if err != nil {
		h.consecutiveFailures++
		logger.Error("Evaluation pass failed: %v", err)
		if h.consecutiveFailures == 1 && h.alert != nil {
			if sendErr := h.alert.SendError(ctx, err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}
	logger.Debug("Evaluation pass: %s", outcome)
	if h.consecutiveFailures > 0 && h.alert != nil {
		if sendErr := h.alert.SendRecovery(ctx, h.consecutiveFailures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	h.consecutiveFailures = 0
}

// startDispatcher runs d on its own context. The returned stop cancels it and waits until
// everything still queued has been delivered.
func startDispatcher(d *notify.Dispatcher) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func runWatch(ctx context.Context, cfg *config.Config, appendSession bool, venue string) error {
	metrics := observability.NewMetrics("")

	var sinks []notify.Sink
	var history server.History
	if cfg.Database.Enabled {
		db, err := storage.New(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database: %v", err)
			}
		}()
		sinks = append(sinks, db)
		history = db
	}
	if cfg.API.Enabled {
		sinks = append(sinks, apiclient.NewClient(cfg.API.URL, cfg.API.Token, cfg.API.Timeout, cfg.API.MaxRetries, cfg.API.RetryDelayBase))
	}

	health := &cycleHealth{}
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		var err error
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return err
		}
		logger.Info("Telegram client initialized successfully")
		sinks = append(sinks, telegramClient)
		health.alert = telegramClient
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	dispatcher := notify.NewDispatcher(sinks, notify.Options{
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.SinkTimeout,
		Metrics:   metrics,
	})
	logger.Info("Match sinks: %v", dispatcher.Sinks())

	files := fileStore(cfg)
	tr, err := tracker.New(savedata.NewFileReader(cfg.Game.SaveFile), files, files, dispatcher, tracker.Options{
		Append:  appendSession,
		Venue:   venue,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	if err := tr.Start(); err != nil {
		logger.Warn("No initial baseline yet: %v", err)
	}

	// The dispatcher outlives the watcher so records from the last pass are still flushed.
	defer startDispatcher(dispatcher)()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, tr)
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, tr, history, metrics.Handler())
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("HTTP server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown: %v", err)
			}
		}()
	}

	logger.Info("Starting tracker (save file: %s, debounce: %v, poll: %v)",
		cfg.Game.SaveFile, cfg.Watch.Debounce, cfg.Watch.PollInterval)

	w := watcher.New(cfg.Game.SaveFile, cfg.Watch.Debounce, cfg.Watch.PollInterval)
	err = w.Run(ctx, func(ctx context.Context) {
		outcome, err := tr.Evaluate(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		health.handle(ctx, outcome, err)
	})
	logger.Info("Tracker stopped")
	return err
}
