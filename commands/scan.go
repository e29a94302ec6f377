package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evetools/fleetmeter/internal/data/discovery"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the gamelogs found in the watch directory",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logs, err := discovery.ScanAll(cfg.GamelogDir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", cfg.GamelogDir, err)
	}
	if len(logs) == 0 {
		fmt.Printf("No gamelogs with a session header in %s\n", cfg.GamelogDir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHARACTER\tSESSION START\tSIZE\tFILE")
	for _, lg := range logs {
		start := "-"
		if lg.AnchorKnown {
			start = lg.SessionStart.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", lg.Character, start, lg.FileSize, lg.Path)
	}
	return w.Flush()
}
