// Package cli wires the cobra commands of classifier-forge.
package cli

import (
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"classifier-forge/internal/config"
)

// DefaultConfigPath is read when --config is not given. A missing file at
// this path is not an error.
const DefaultConfigPath = "configs/demo.yaml"

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree around a fresh viper instance.
// Precedence is flags > config file > defaults.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string
	root := &cobra.Command{
		Use:          "classifier-forge",
		Short:        "Train an image classifier on WebDataset shards and report top-k error",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", DefaultConfigPath, "Path to YAML config")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return readConfigFile(v, cfgFile, root.PersistentFlags().Changed("config"))
	}

	root.AddCommand(newTrainCmd(v), newConfigCmd(v))
	return root
}

func readConfigFile(v *viper.Viper, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "failed to load config")
	}
	return nil
}
