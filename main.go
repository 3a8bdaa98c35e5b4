package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Artfain/triad-fedchain/api"
	"github.com/Artfain/triad-fedchain/config"
	"github.com/Artfain/triad-fedchain/logging"
	"github.com/Artfain/triad-fedchain/sim"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "fedchain",
		Short:        "Simulate federated learning rounds ordered by a reputation-weighted chain",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.AddCommand(runCmd(&configPath), serveCmd(&configPath))
	return root
}

func loadConfig(path string, rounds int) (config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Config{}, err
	}
	if rounds >= 0 {
		cfg.Rounds = rounds
	}
	logging.Setup(os.Stderr, cfg.Log.Level)
	return cfg, nil
}

func runCmd(configPath *string) *cobra.Command {
	var (
		rounds int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured number of rounds and print the final state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, rounds)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := sim.FromConfig(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.Run(ctx, cfg.Rounds); err != nil {
				return err
			}
			report := s.Report()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return renderReport(report)
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", -1, "number of rounds (overrides config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run rounds while exposing chains and reputation over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, rounds)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := sim.FromConfig(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			go func() {
				if _, err := s.Run(ctx, cfg.Rounds); err != nil {
					logging.Error("Simulation stopped", logging.Simulation, "error", err)
				}
			}()
			return api.NewServer(s, cfg.API).ListenAndServe(ctx, cfg.API.Addr)
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", -1, "number of rounds (overrides config)")
	return cmd
}

func renderReport(r sim.Report) error {
	pterm.DefaultSection.Println(fmt.Sprintf("Final state after %d rounds", r.Rounds))
	data := pterm.TableData{{"Node", "Stake", "Reputation", "Malicious", "Detections", "Chain", "Created", "Link issues"}}
	for _, n := range r.Nodes {
		data = append(data, []string{
			n.ID,
			fmt.Sprintf("%.2f", n.Stake),
			fmt.Sprintf("%.2f", n.Reputation),
			fmt.Sprintf("%t", n.Malicious),
			fmt.Sprintf("%d", n.Detections),
			fmt.Sprintf("%d", n.ChainLength),
			fmt.Sprintf("%d", n.BlocksCreated),
			fmt.Sprintf("%d", n.LinkIssues),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	rec := r.Reconciliation
	pterm.Info.Printfln("distinct blocks: %d, identical order across nodes: %t", rec.Union, rec.Ordered)
	return nil
}
