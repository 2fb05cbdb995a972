package cmd

import (
	"fmt"
	"os"

	"github.com/filipexyz/chanrelay/internal/cli/config"
	"github.com/filipexyz/chanrelay/internal/cli/output"
	"github.com/filipexyz/chanrelay/pkg/client"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	serverURL  string
	jsonOutput bool
	cfg        *config.Config
	out        *output.Output
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "CLI for chanrelay chat servers",
	Long: `chatctl inspects and operates chanrelay chat backends.

It validates and renders channel units offline, and talks to a running
chatd over its HTTP API for channels, sessions and reloads.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		out = output.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), jsonOutput)

		// Load config (ignore errors for commands that don't need it)
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			cfg = &config.Config{}
		}

		// Server URL priority: flag > config > default
		if serverURL == "" && cfg.Server != "" {
			serverURL = cfg.Server
		}
		if serverURL == "" {
			serverURL = client.DefaultServer
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.chanrelay/cli.json)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "chatd URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

// getClient creates a client with current config.
func getClient() *client.Client {
	return client.New(client.WithServer(serverURL))
}

// channelsDir returns dir, falling back to the configured channels dir.
func channelsDir(dir string) string {
	if dir != "" {
		return dir
	}
	if cfg != nil && cfg.ChannelsDir != "" {
		return cfg.ChannelsDir
	}
	return "channels"
}
