package cmd

import (
	"fmt"

	"github.com/filipexyz/chanrelay/internal/cli/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}

		if jsonOutput {
			out.JSON(map[string]any{
				"path":         path,
				"server":       serverURL,
				"channels_dir": channelsDir(""),
			})
			return
		}

		out.Header("Configuration")
		out.KeyValue("Path", path)
		out.KeyValue("Server", serverURL)
		out.KeyValue("Channels dir", channelsDir(""))
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <server|channels-dir> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"server", "channels-dir"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "server":
			cfg.Server = args[1]
		case "channels-dir":
			cfg.ChannelsDir = args[1]
		default:
			return fmt.Errorf("unknown key %q", args[0])
		}
		if err := config.Save(cfg, cfgFile); err != nil {
			out.Error("Failed to save config: %v", err)
			return err
		}
		out.Success("Set %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
