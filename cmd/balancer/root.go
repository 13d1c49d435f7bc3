package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/adaptive-balancer/config"
	"github.com/angeloszaimis/adaptive-balancer/pkg/logger"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "balancer",
		Short:         "balancer orders replicas by how well they have been serving lately",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default: config.yaml in ./config or .)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	// Flags override the config file and environment.
	_ = a.v.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newServeCmd(a), newSimulateCmd(a), newBackendCmd())

	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	return nil
}
