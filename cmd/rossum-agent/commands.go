package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stancld/rossum-agents-sub001/config"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server.

Configuration is read from the file (if it exists), then environment
overrides are applied. SIGINT and SIGTERM trigger a graceful shutdown.`,
		Example: `  rossum-agent serve
  rossum-agent serve --config /etc/rossum-agent/production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("ROSSUM_AGENT_CONFIG"), "Path to YAML configuration file (defaults and environment only when empty)")

	return cmd
}

// buildConfigCmd prints the effective configuration with secrets masked.
func buildConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out, err := yaml.Marshal(redact(cfg))
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("ROSSUM_AGENT_CONFIG"), "Path to YAML configuration file (defaults and environment only when empty)")

	return cmd
}

func redact(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}

	mask(&cfg.Model.APIKey)
	mask(&cfg.Platform.Token)
	mask(&cfg.Artifacts.S3.AccessKeyID)
	mask(&cfg.Artifacts.S3.SecretAccessKey)

	return cfg
}
