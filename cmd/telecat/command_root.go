package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LBVDSEC/telecat/internal/config"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// app carries state shared by the subcommands
type app struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "telecat",
		Short:         "Run and control hashcat sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "environment file to load (default .env when present)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newDevicesCmd(a))
	root.AddCommand(newInstallCmd(a))
	root.AddCommand(newVersionsCmd(a))
	root.AddCommand(newVersionCmd())

	return root
}

// load reads the configuration and applies its logging settings
func (a *app) load() error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}
	if err := debug.Configure(cfg.DebugOptions()); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	a.cfg = cfg
	return nil
}
