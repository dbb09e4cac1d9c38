package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"riskgate/config"
	"riskgate/logs"
	"riskgate/proposer"
	"riskgate/risk"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "riskgate",
		Short: "riskgate - trade risk validation and position sizing",
		Long: `riskgate checks every proposed equity trade against notional bounds, volatility sizing,
per-ticker exposure, re-entry cooldowns and a per-cycle trade cap before anything reaches the broker.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().String("config", "config/config.yaml", "Path to the config.yaml file")

	return rootCmd
}

// loadConfig reads .env and the YAML config named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, *config.EnvConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: .env file not found, will continue using system environment variables.")
	}
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to load config file '%s': %w", configPath, err)
	}
	return cfg, config.LoadEnvConfig(), nil
}

// newRunCmd creates the run command
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the evaluation loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, envCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logFilename := filepath.Join(cfg.Normal.LogDirectory, "riskgate.log")
			if err := logs.Init(cfg.Logs, logFilename); err != nil {
				return fmt.Errorf("failed to initialize logging system: %w", err)
			}
			defer logs.Close()
			logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFilename)

			orchestrator, err := NewOrchestrator(cfg, envCfg, stateFilePath(cfg), false)
			if err != nil {
				return fmt.Errorf("failed to initialize orchestrator: %w", err)
			}
			orchestrator.Start()

			// Wait for and handle program termination signals
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			orchestrator.Stop()
			return nil
		},
	}
}

// newEvaluateCmd creates the evaluate command
func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a proposal file once without placing orders",
		Long: `Evaluate runs one batch of proposals through the risk engine against the current account
and prints the decisions. No orders are sent and nothing is journaled.
Example: riskgate evaluate --proposals proposals/sample.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, envCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("proposals")
			proposals, err := proposer.LoadProposals(path)
			if err != nil {
				return err
			}

			orchestrator, err := NewOrchestrator(cfg, envCfg, stateFilePath(cfg), true)
			if err != nil {
				return fmt.Errorf("failed to initialize orchestrator: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			decisions, err := orchestrator.Evaluate(ctx, proposals)
			if err != nil {
				return err
			}
			renderDecisions(os.Stdout, decisions)
			return nil
		},
	}

	cmd.Flags().String("proposals", "", "YAML file with a trades list")
	cmd.MarkFlagRequired("proposals")

	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("riskgate %s\n", version)
		},
	}
}

// renderDecisions prints one row per decision in evaluation order.
func renderDecisions(w io.Writer, decisions []risk.Decision) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RISK DECISIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Ticker", "Side", "Verdict", "Requested", "Shares", "Price", "Notional", "Reason", "Detail"})

	var approved int
	for i, d := range decisions {
		if d.Executable() {
			approved++
		}
		t.AppendRow(table.Row{
			i + 1, d.Ticker, d.Side, d.Verdict, d.RequestedShares, d.Shares,
			fmt.Sprintf("%.2f", d.ReferencePrice), fmt.Sprintf("$%.2f", d.Notional), d.Reason, d.Detail,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "Executable", fmt.Sprintf("%d / %d", approved, len(decisions))})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 10, WidthMax: 48},
	})
	t.Render()
}
