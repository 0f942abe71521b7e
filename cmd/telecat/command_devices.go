package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LBVDSEC/telecat/internal/hardware"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

func newDevicesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List compute devices reported by hashcat -I",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}

			result, err := hardware.NewDetector(a.cfg.HashcatPath).Detect(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			printDevices(out, result.Devices)
			if host, err := hardware.SampleHost(); err == nil {
				fmt.Fprintf(out, "\nHost memory: %d MB available of %d MB (%.1f%% used)\n",
					host.MemoryAvailable>>20, host.MemoryTotal>>20, host.MemoryUsed)
			} else {
				debug.Warning("Failed to sample host memory: %v", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the detection result as JSON")
	return cmd
}
