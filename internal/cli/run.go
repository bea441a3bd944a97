package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/webpilot/internal/config"
	"github.com/harun/webpilot/internal/daemon"
	"github.com/harun/webpilot/internal/logger"
	"github.com/harun/webpilot/pkg/navigator"
	"github.com/spf13/cobra"
)

var (
	runStartURL  string
	runModel     string
	runMaxTurns  int
	runTimeoutMs int
)

var runCmd = &cobra.Command{
	Use:   "run <instruction>",
	Short: "Run a single instruction against a fresh browser session",
	Long: `Run one natural-language instruction without the daemon service.
A browser session is opened, the instruction executes until the model
signals completion or the turn budget runs out, and the session is
torn down afterwards.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runStartURL, "url", "", "URL to open before the instruction runs")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override for this run")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "maximum model turns for this run")
	runCmd.Flags().IntVar(&runTimeoutMs, "timeout-ms", 0, "run timeout in milliseconds")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w (run 'webpilot configure' first)", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	defer d.GetSessions().Shutdown()

	instruction := strings.Join(args, " ")
	result, err := d.RunOnce(context.Background(), instruction, runStartURL, runOverrides())
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Printf("Success: %t\n", result.Success)
	fmt.Printf("Turns: %d\n", result.Turns)
	fmt.Printf("Summary: %s\n", result.Summary)

	return nil
}

// runOverrides builds per-run config overrides from flags, or nil when
// no flag was set
func runOverrides() *navigator.Config {
	if runModel == "" && runMaxTurns == 0 && runTimeoutMs == 0 {
		return nil
	}
	return &navigator.Config{
		Model:     runModel,
		MaxTurns:  runMaxTurns,
		TimeoutMs: runTimeoutMs,
	}
}
