package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evetools/fleetmeter/internal/application/monitor"
	"github.com/evetools/fleetmeter/internal/config"
	"github.com/evetools/fleetmeter/internal/util"
)

var (
	// Logging related
	debug bool

	// Configuration
	configPath string
	gamelogDir string
	windowSecs int

	// Output related
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "fleetmeter [flags]",
		Short: "Live combat metrics for multiboxed EVE clients",
		Long: `fleetmeter tails the gamelogs of every logged-in character and shows
per-character and fleet-wide damage, repair, capacitor transfer and
neutralization rates over a short trailing window.

Examples:
  fleetmeter                                  # Watch the default gamelog directory
  fleetmeter --dir ~/EVE/logs/Gamelogs        # Watch a specific directory
  fleetmeter --window 10                      # 10 second trailing window
  fleetmeter --json                           # Emit samples as JSON lines
  fleetmeter replay fight1.txt fight2.txt     # Replay recorded logs
  fleetmeter scan                             # List discovered gamelogs`,
		RunE: runWatch,
	}
)

const defaultLogFile = "~/.fleetmeter/logs/app.log"

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&gamelogDir, "dir", "",
		"Gamelog directory path (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&windowSecs, "window", "w", 0,
		"Trailing window in seconds (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Emit samples as JSON lines instead of the interactive table")
}

// loadConfig resolves the layered configuration and applies the flag
// overrides, then brings up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(expandPath(configPath))
	if err != nil {
		return nil, err
	}
	if gamelogDir != "" {
		cfg.GamelogDir = expandPath(gamelogDir)
	}
	if windowSecs > 0 {
		cfg.WindowSeconds = windowSecs
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = expandPath(defaultLogFile)
	}
	if err := ensureDir(filepath.Dir(logFile)); err != nil {
		return nil, err
	}
	if err := util.InitLogger(cfg.LogLevel, logFile, debug); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return monitor.NewMonitor(cfg, jsonOutput).Run(ctx)
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	if path == "" {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
