package cmd

import (
	"github.com/spf13/cobra"

	"github.com/filipexyz/chanrelay/internal/proxy"
)

var proxyStatusFile string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Inspect the local proxy tier",
}

var proxyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status written by a local chatproxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := proxy.ReadStatus(proxyStatusFile)
		if err != nil {
			out.Error("No proxy status: %v", err)
			return err
		}
		if jsonOutput {
			out.JSON(status)
			return nil
		}
		cmd.Print(proxy.FormatHumanStatus(status))
		return nil
	},
}

func init() {
	proxyStatusCmd.Flags().StringVar(&proxyStatusFile, "status-file", "", "status file (default $HOME/.chanrelay/proxy.status.json)")
	proxyCmd.AddCommand(proxyStatusCmd)
	rootCmd.AddCommand(proxyCmd)
}
