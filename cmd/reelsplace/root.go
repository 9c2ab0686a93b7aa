package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/reelsplace/internal/config"
	"github.com/iliyamo/reelsplace/internal/logging"
)

// commandContext loads the configuration and logger once per invocation.
type commandContext struct {
	configPath *string

	cfg    *config.Config
	logger *logrus.Logger
}

func (c *commandContext) loadConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	c.cfg = &cfg
	return cfg, nil
}

func (c *commandContext) log() *logrus.Logger {
	if c.logger == nil {
		level := "info"
		if c.cfg != nil {
			level = c.cfg.LogLevel
		}
		c.logger = logging.New(level)
	}
	return c.logger
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configPath: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "reelsplace",
		Short:         "Turns saved Instagram reels into places on a map",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML or TOML)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newWorkerCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newExtractCommand())
	rootCmd.AddCommand(newTokenCommand(ctx))
	return rootCmd
}
