package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/taskpilot/internal/config"
	"github.com/harun/taskpilot/internal/logger"
	"github.com/harun/taskpilot/pkg/conversation"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep and exit",
	Long: `Run one conversation retention sweep against the configured data
directory and exit. Useful for cron-driven deployments that do not keep
the server's built-in schedule enabled.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	store, err := conversation.NewStore(conversation.StoreConfig{
		DBPath: filepath.Join(cfg.DataDir, "conversations.db"),
		Logger: log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer store.Close()

	sweeper, err := conversation.NewSweeper(conversation.SweeperConfig{
		Store:   store,
		Logger:  log.GetZerolog(),
		MaxIdle: time.Duration(cfg.Retention.MaxIdleDays) * 24 * time.Hour,
	})
	if err != nil {
		return err
	}

	return sweeper.Sweep(context.Background())
}
