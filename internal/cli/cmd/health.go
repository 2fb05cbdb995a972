package cmd

import (
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Long:  `Check the health and readiness of a chatd backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient()

		health, err := c.Health()
		if err != nil {
			if jsonOutput {
				out.JSON(map[string]any{
					"status": "error",
					"error":  err.Error(),
				})
			} else {
				out.Error("Server unreachable: %v", err)
			}
			return err
		}

		// Readiness only adds detail; a not-ready server is still healthy.
		ready, readyErr := c.Ready()

		if jsonOutput {
			result := map[string]any{"status": health.Status}
			if ready != nil {
				result["nats"] = ready.Nats
			}
			out.JSON(result)
			return nil
		}

		out.Success("Server is healthy")
		out.KeyValue("Server", c.ServerURL())
		out.KeyValue("Status", health.Status)
		if readyErr != nil {
			out.Warn("Not ready: %v", readyErr)
			return nil
		}
		out.KeyValue("NATS", ready.Nats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
