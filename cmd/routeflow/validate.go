package main

import (
	"fmt"

	"github.com/spf13/cobra"

	transportpkg "github.com/drblury/routeflow/internal/runtime/transport"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration, then exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		caps := transportpkg.CapabilitiesFor(cfg.PubSubSystem)
		fmt.Fprintf(out, "configuration ok (transport %s)\n", cfg.PubSubSystem)
		if cfg.ConsumerEnabled && !caps.OrdersByKey() {
			fmt.Fprintf(out, "note: %s does not keep per-key order for consumed messages\n", cfg.PubSubSystem)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
