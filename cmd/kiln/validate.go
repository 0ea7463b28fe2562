package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/kiln/internal/config"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a kiln configuration file without binding any socket.

Environment overrides are applied before validation, so the result matches
what serve would use.

Example:
  kiln validate -c kiln.yaml`,
		RunE: runValidate,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Config is valid!")
	for _, l := range cfg.Listeners() {
		fmt.Fprintf(out, "  Listener:  %s %s\n", l.Kind, l.Addr)
	}
	fmt.Fprintf(out, "  Data dir:  %s\n", cfg.DataDir)
	fmt.Fprintf(out, "  Database:  %s\n", enabled(cfg.Database.ConnectionString != ""))
	if cfg.Database.Migrations != "" {
		fmt.Fprintf(out, "  Migrate:   %s\n", cfg.Database.Migrations)
	}
	fmt.Fprintf(out, "  Redis:     %s\n", enabled(cfg.Redis.URL != ""))
	fmt.Fprintf(out, "  Metrics:   %s\n", enabled(cfg.Metrics.Enabled))
	return nil
}

func enabled(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}
