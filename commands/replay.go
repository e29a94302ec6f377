package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evetools/fleetmeter/internal/application/monitor"
)

var (
	replaySpeed float64

	replayCmd = &cobra.Command{
		Use:   "replay <logfile>...",
		Short: "Replay recorded gamelogs through the live metrics pipeline",
		Long: `replay loads one or more recorded gamelog files, merges them onto a
shared timeline and plays them back against the same window aggregation
as live mode.

Controls: space pauses, +/- change speed, left/right arrows seek 10s,
'.' steps one sample while paused, q quits.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runReplay,
	}
)

func init() {
	replayCmd.Flags().Float64VarP(&replaySpeed, "speed", "s", 1.0,
		fmt.Sprintf("Playback speed multiplier (%.2g to %.2g)", 0.25, 16.0))
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths := make([]string, len(args))
	for i, arg := range args {
		paths[i] = expandPath(arg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return monitor.NewReplayer(cfg, paths, replaySpeed, jsonOutput).Run(ctx)
}
