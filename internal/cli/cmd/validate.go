package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/function"
)

var validateFunctions string

var validateCmd = &cobra.Command{
	Use:   "validate [channels-dir]",
	Short: "Check channel units and the functions file",
	Long: `Load every channel unit under a directory the way chatd does and report
the units that fail. Exits non-zero when any unit or the functions file is invalid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		dir = channelsDir(dir)

		channels, errs, err := loadChannels(dir)
		if err != nil {
			return err
		}

		var fnCount int
		var fnErr error
		if validateFunctions != "" {
			set, err := function.LoadFile(validateFunctions)
			if err != nil {
				fnErr = err
			} else {
				fnCount = set.Len()
			}
		}

		ids := make([]string, 0, len(channels))
		for id := range channels {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		if jsonOutput {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			result := map[string]any{
				"dir":      dir,
				"channels": ids,
				"errors":   msgs,
			}
			if validateFunctions != "" {
				result["functions"] = fnCount
				if fnErr != nil {
					result["functions_error"] = fnErr.Error()
				}
			}
			out.JSON(result)
		} else {
			out.Header("Channels in " + dir)
			for _, id := range ids {
				out.Success("%s (%s)", id, channels[id].File)
			}
			for _, e := range errs {
				out.Error("%v", e)
			}
			if validateFunctions != "" {
				if fnErr != nil {
					out.Error("%v", fnErr)
				} else {
					out.Success("%d functions in %s", fnCount, validateFunctions)
				}
			}
		}

		if n := len(errs); n > 0 || fnErr != nil {
			if fnErr != nil {
				n++
			}
			return fmt.Errorf("validation failed: %d problems", n)
		}
		return nil
	},
}

// loadChannels loads dir with a quiet loader.
func loadChannels(dir string) (map[string]*channel.Channel, []error, error) {
	loader, err := channel.NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, nil, err
	}
	channels, errs := loader.LoadDir(dir)
	return channels, errs, nil
}

func init() {
	validateCmd.Flags().StringVar(&validateFunctions, "functions", "", "functions file to check as well")
	rootCmd.AddCommand(validateCmd)
}
