package main

import (
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/asynccts"
	"github.com/kailas-cloud/asynccts/internal/config"
)

var (
	envName    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "asynccts",
	Short: "Asynchronous search coordinator with a result cache",
	Long: `asynccts answers artifact lookups from a cache of recent results and
runs new searches in the background. Clients poll the returned id until the
hits are ready.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", config.GetEnv(),
		"environment; selects config/<env>.yaml and the log format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a config file (overrides --env lookup)")
}

// configOptions returns the options shared by every command that touches the store.
func configOptions() []asynccts.Option {
	opts := []asynccts.Option{asynccts.WithEnv(envName)}
	if configPath != "" {
		opts = append(opts, asynccts.WithConfigFile(configPath))
	}
	return opts
}
