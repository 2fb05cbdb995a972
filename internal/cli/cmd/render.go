package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/function"
	"github.com/filipexyz/chanrelay/internal/richtext"
	"github.com/filipexyz/chanrelay/internal/session"
)

var renderOpts struct {
	dir       string
	functions string
	channel   string
	sender    string
	receiver  string
	perms     []string
	world     string
	console   bool
	private   bool
	ansi      bool
}

var renderCmd = &cobra.Command{
	Use:   "render <message>",
	Short: "Render a chat line offline",
	Long: `Render a message through a channel's formats without a running server.

  chatctl render --channel Global --sender alice --perm vip.* "hello world"

Formats are resolved for the given sender and receiver exactly as chatd
would. --console renders the console formats, --private the sender side
of a private channel.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channels, errs, err := loadChannels(channelsDir(renderOpts.dir))
		if err != nil {
			return err
		}
		for _, e := range errs {
			out.Warn("%v", e)
		}
		ch, ok := channels[renderOpts.channel]
		if !ok {
			return fmt.Errorf("unknown channel %q", renderOpts.channel)
		}

		rc := &format.RenderContext{
			Sender:  renderSession(renderOpts.sender, renderOpts.perms),
			Channel: ch.ID,
			Message: args[0],
		}
		if renderOpts.receiver != "" {
			rc.Receiver = renderSession(renderOpts.receiver, nil)
		}

		if renderOpts.functions != "" {
			set, err := function.LoadFile(renderOpts.functions)
			if err != nil {
				return err
			}
			body, _ := set.Apply(rc.Message, rc.Document(), ch.Settings.DisabledFunctions)
			rc.Body = body
		}

		c, ok := format.ResolveFormat(renderFormats(ch), rc)
		if !ok {
			return fmt.Errorf("no format of %s matched", ch.ID)
		}

		if jsonOutput {
			out.JSON(c)
			return nil
		}
		fmt.Fprintln(out.Writer(), richtext.NewColorizer(renderOpts.ansi).Render(c))
		return nil
	},
}

func renderFormats(ch *channel.Channel) format.Formats {
	switch {
	case renderOpts.private && ch.IsPrivate():
		return ch.Private.Sender
	case renderOpts.console && len(ch.Console) > 0:
		return ch.Console
	}
	return ch.Formats
}

func renderSession(name string, perms []string) *session.Session {
	return &session.Session{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		Name:        name,
		Server:      "local",
		World:       renderOpts.world,
		Locale:      "en_us",
		Permissions: perms,
	}
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderOpts.dir, "dir", "", "channels directory")
	f.StringVar(&renderOpts.functions, "functions", "", "functions file")
	f.StringVar(&renderOpts.channel, "channel", "Normal", "channel id")
	f.StringVar(&renderOpts.sender, "sender", "Console", "sender name")
	f.StringVar(&renderOpts.receiver, "receiver", "", "receiver name")
	f.StringSliceVar(&renderOpts.perms, "perm", nil, "sender permission (repeatable)")
	f.StringVar(&renderOpts.world, "world", "world", "sender world")
	f.BoolVar(&renderOpts.console, "console", false, "use the console formats")
	f.BoolVar(&renderOpts.private, "private", false, "use the private sender formats")
	f.BoolVar(&renderOpts.ansi, "ansi", false, "color the output with ANSI escapes")
	rootCmd.AddCommand(renderCmd)
}
