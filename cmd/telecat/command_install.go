package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LBVDSEC/telecat/internal/binaries"
	"github.com/LBVDSEC/telecat/internal/hardware"
)

func newInstallCmd(a *app) *cobra.Command {
	var (
		version int64
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "install ARCHIVE --version N",
		Short: "Unpack a hashcat .7z release into the data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if version <= 0 {
				return errors.New("--version must be a positive number")
			}
			if err := a.load(); err != nil {
				return err
			}

			path, err := binaries.NewInstaller(a.cfg.DataDirectory).WithForce(force).Install(args[0], version)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed hashcat version %d: %s\n", version, path)
			return nil
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "version number to install the release as")
	cmd.Flags().BoolVar(&force, "force", false, "replace an installed version")
	return cmd
}

func newVersionsCmd(a *app) *cobra.Command {
	var remove int64

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List installed hashcat releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if remove > 0 {
				if err := binaries.NewInstaller(a.cfg.DataDirectory).Remove(remove); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed hashcat version %d\n", remove)
				return nil
			}

			locator := hardware.NewBinaryLocator(a.cfg.DataDirectory)
			versions, err := locator.Versions()
			if err != nil || len(versions) == 0 {
				fmt.Fprintf(out, "No hashcat releases installed in %s\n", locator.Root())
				return nil
			}
			rows := make([][]string, 0, len(versions))
			for _, v := range versions {
				path, _ := locator.Version(v)
				active := ""
				if path == a.cfg.HashcatPath {
					active = "*"
				}
				rows = append(rows, []string{strconv.FormatInt(v, 10), active, path})
			}
			printTable(out, []string{"VERSION", "ACTIVE", "BINARY"}, rows)
			return nil
		},
	}
	cmd.Flags().Int64Var(&remove, "remove", 0, "delete an installed version")
	return cmd
}
