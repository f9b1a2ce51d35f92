// Package daemon wires configuration, storage, the model runner, and the
// HTTP surface into one runnable service.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/taskpilot/internal/config"
	"github.com/harun/taskpilot/internal/logger"
	"github.com/harun/taskpilot/internal/observability"
	"github.com/harun/taskpilot/pkg/agent"
	"github.com/harun/taskpilot/pkg/api"
	"github.com/harun/taskpilot/pkg/conversation"
	"github.com/harun/taskpilot/pkg/task"
	"github.com/harun/taskpilot/pkg/tasktools"
	"github.com/harun/taskpilot/pkg/toolexecutor"
)

// Daemon is the assembled taskpilot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	taskStore     *task.Store
	conversations *conversation.Store
	toolExecutor  *toolexecutor.ToolExecutor
	runner        *agent.Runner
	apiServer     *api.Server
	sweeper       *conversation.Sweeper
	configWatcher *config.Watcher

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New builds a daemon from configuration. Nothing is started yet.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	taskStore, err := task.NewStore(task.StoreConfig{
		DBPath: filepath.Join(cfg.DataDir, "tasks.db"),
		Logger: log.GetZerolog(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	conversations, err := conversation.NewStore(conversation.StoreConfig{
		DBPath: filepath.Join(cfg.DataDir, "conversations.db"),
		Logger: log.GetZerolog(),
	})
	if err != nil {
		taskStore.Close()
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	executor := toolexecutor.New()
	if err := tasktools.Register(executor, taskStore); err != nil {
		taskStore.Close()
		conversations.Close()
		return nil, fmt.Errorf("failed to register task tools: %w", err)
	}

	provider, err := agent.NewProvider(cfg.Model.Provider, cfg.Model.APIKey)
	if err != nil {
		taskStore.Close()
		conversations.Close()
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	runner, err := agent.NewRunner(agent.Config{
		Provider:     provider,
		ToolExecutor: executor,
		Logger:       log.GetZerolog(),
		MaxTurns:     cfg.Agent.MaxTurns,
		CallTimeout:  time.Duration(cfg.Agent.CallTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.Agent.MaxRetries,
	})
	if err != nil {
		taskStore.Close()
		conversations.Close()
		return nil, fmt.Errorf("failed to create agent runner: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerOptions{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		JWTSecret:    cfg.Auth.JWTSecret,
		HistoryLimit: cfg.Agent.HistoryLimit,
		Model: agent.ModelConfig{
			Model:        cfg.Model.Name,
			Temperature:  cfg.Model.Temperature,
			MaxTokens:    cfg.Model.MaxTokens,
			SystemPrompt: cfg.Model.SystemPrompt,
		},
	}, runner, conversations, log.GetZerolog())
	if err != nil {
		taskStore.Close()
		conversations.Close()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	d := &Daemon{
		config:        cfg,
		logger:        log,
		taskStore:     taskStore,
		conversations: conversations,
		toolExecutor:  executor,
		runner:        runner,
		apiServer:     apiServer,
	}

	if cfg.Retention.Enabled {
		sweeper, err := conversation.NewSweeper(conversation.SweeperConfig{
			Store:    conversations,
			Logger:   log.GetZerolog(),
			MaxIdle:  time.Duration(cfg.Retention.MaxIdleDays) * 24 * time.Hour,
			Schedule: cfg.Retention.Schedule,
		})
		if err != nil {
			taskStore.Close()
			conversations.Close()
			return nil, fmt.Errorf("failed to create retention sweeper: %w", err)
		}
		d.sweeper = sweeper
	}

	return d, nil
}

// Start brings up the HTTP server, the retention schedule, and the
// config watcher.
func (d *Daemon) Start(loader *config.Loader) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().
		Str("provider", d.config.Model.Provider).
		Str("model", d.config.Model.Name).
		Msg("Starting taskpilot daemon")

	if err := d.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	d.logger.Info().
		Str("host", d.config.Server.Host).
		Int("port", d.config.Server.Port).
		Msg("API server started")

	if d.sweeper != nil {
		if err := d.sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start retention sweeper: %w", err)
		}
	}

	if loader != nil {
		watcher, err := config.NewWatcher(loader, d.logger.GetZerolog(), d.applyReload)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Config watcher unavailable, continuing without hot reload")
		} else {
			d.configWatcher = watcher
		}
	}

	return nil
}

// Stop shuts everything down in reverse start order.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping taskpilot daemon")

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if d.sweeper != nil {
		d.sweeper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.apiServer.Stop(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("API server shutdown incomplete")
	}

	if err := d.conversations.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close conversation store")
	}
	if err := d.taskStore.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close task store")
	}

	d.logger.Info().Dur("uptime", time.Since(d.startTime)).Msg("Taskpilot daemon stopped")
	return nil
}

// Running reports whether the daemon has been started and not stopped.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// applyReload applies the safe subset of a changed configuration.
func (d *Daemon) applyReload(cfg *config.Config) {
	if cfg.Logging.Level != d.config.Logging.Level {
		d.logger.SetLevel(cfg.Logging.Level)
		d.logger.Info().Str("level", cfg.Logging.Level).Msg("Log level updated from config reload")
		d.config.Logging.Level = cfg.Logging.Level
	}
}
