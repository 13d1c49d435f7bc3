package main

import (
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"github.com/angeloszaimis/adaptive-balancer/internal/simulation"
)

func newSimulateCmd(a *app) *cobra.Command {
	var (
		dump         bool
		strategyName string
	)

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a synthetic traffic scenario through the balancer",
		Long: `Replay a scenario of simulated replicas through the configured balancer
on a virtual clock and print how first choices shifted between replicas.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := simulation.LoadScenario(args[0])
			if err != nil {
				return err
			}

			settings := a.cfg.LoadBalancerSettings()
			if strategyName != "" {
				settings.Strategy = strategyName
			}

			report, err := simulation.NewRunner(scenario, settings, a.logger).Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			writeReport(out, report)

			if dump {
				pp.Fprintln(out, report)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "pretty-print the full report, statistics included")
	cmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "override strategy.type for this run")

	return cmd
}
