package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/harun/webpilot/internal/config"
	"github.com/harun/webpilot/internal/history"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historySession string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent instruction runs",
	Long:  `List recent instruction runs recorded by the daemon, newest first.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	historyCmd.Flags().StringVar(&historySession, "session", "", "only show runs for this session")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if !cfg.History.Enabled {
		fmt.Println("History is disabled")
		return nil
	}

	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		fmt.Println("No runs recorded yet")
		return nil
	}

	store, err := history.New(cfg.History.Path, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	runs, err := store.List(context.Background(), historySession, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	for _, run := range runs {
		status := "ok"
		if !run.Success {
			status = "failed"
		}
		fmt.Printf("%s  %-6s  %2d turns  %6dms  %s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			status,
			run.Turns,
			run.DurationMs,
			run.Instruction,
		)
	}

	return nil
}
