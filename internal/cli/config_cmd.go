package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"classifier-forge/internal/config"
)

func newConfigCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration and whether it is runnable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if file := v.ConfigFileUsed(); file != "" {
				fmt.Fprintf(out, "Config file: %s\n", file)
			}
			verr := cfg.Validate()
			for _, kv := range cfg.Pairs() {
				fmt.Fprintf(out, "  %-16s %s\n", kv[0]+":", kv[1])
			}
			if verr != nil {
				fmt.Fprintf(out, "invalid: %v\n", verr)
				return verr
			}
			fmt.Fprintln(out, "valid")
			return nil
		},
	})
	return cmd
}
