package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:     "channels",
	Aliases: []string{"ch"},
	Short:   "List channels registered on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := getClient().Channels()
		if err != nil {
			out.Error("Failed to list channels: %v", err)
			return err
		}

		if jsonOutput {
			out.JSON(resp)
			return nil
		}

		if resp.Count == 0 {
			out.Info("No channels registered")
			return nil
		}

		rows := make([][]string, 0, len(resp.Channels))
		for _, ch := range resp.Channels {
			kind := "public"
			switch {
			case ch.Private:
				kind = "private"
			case ch.File == "":
				kind = "remote"
			}
			rows = append(rows, []string{
				ch.ID,
				kind,
				ch.Range,
				strings.Join(ch.Prefix, ","),
				strconv.FormatBool(ch.Proxy),
				strconv.Itoa(ch.Listeners),
			})
		}
		out.Table([]string{"ID", "KIND", "RANGE", "PREFIX", "PROXY", "LISTENERS"}, rows)
		return nil
	},
}

var channelGetCmd = &cobra.Command{
	Use:   "channel <id>",
	Short: "Show one channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := getClient().Channel(args[0])
		if err != nil {
			out.Error("Failed to get channel: %v", err)
			return err
		}

		if jsonOutput {
			out.JSON(ch)
			return nil
		}

		out.Header(ch.ID)
		out.KeyValue("File", orNone(ch.File))
		out.KeyValue("Private", strconv.FormatBool(ch.Private))
		out.KeyValue("Auto-Join", strconv.FormatBool(ch.AutoJoin))
		out.KeyValue("Proxy", strconv.FormatBool(ch.Proxy))
		out.KeyValue("Range", ch.Range)
		out.KeyValue("Prefix", orNone(strings.Join(ch.Prefix, ", ")))
		out.KeyValue("Commands", orNone(strings.Join(ch.Command, ", ")))
		out.KeyValue("Formats", strconv.Itoa(ch.Formats))
		out.KeyValue("Listeners", strconv.Itoa(ch.Listeners))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List online sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := getClient().Sessions()
		if err != nil {
			out.Error("Failed to list sessions: %v", err)
			return err
		}

		if jsonOutput {
			out.JSON(resp)
			return nil
		}

		if resp.Count == 0 {
			out.Info("No sessions online")
			return nil
		}

		rows := make([][]string, 0, len(resp.Sessions))
		for _, s := range resp.Sessions {
			rows = append(rows, []string{s.Name, orNone(s.Focus), strings.Join(s.Channels, ","), s.ID})
		}
		out.Table([]string{"NAME", "FOCUS", "CHANNELS", "ID"}, rows)
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload channel units on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := getClient().Reload()
		if err != nil {
			out.Error("Reload failed: %v", err)
			return err
		}

		if jsonOutput {
			out.JSON(resp)
			return nil
		}

		out.Success("Reloaded %d channels", resp.Loaded)
		for _, e := range resp.Errors {
			out.Warn("%s", e)
		}
		if len(resp.Errors) > 0 {
			return fmt.Errorf("%d channel units failed to load", len(resp.Errors))
		}
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(channelGetCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(reloadCmd)
}
