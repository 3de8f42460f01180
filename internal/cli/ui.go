package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/portal"
	"github.com/tOgg1/chatsync/internal/tui"
)

func init() {
	rootCmd.AddCommand(uiCmd)
}

var uiCmd = &cobra.Command{
	Use:     "ui",
	Aliases: []string{"tui"},
	Short:   "Launch the chat TUI",
	Long:    "Launch the terminal inbox with the unread sidebar and chat rooms.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if IsNonInteractive() {
			return &PreflightError{
				Message:  "TUI requires an interactive terminal",
				Hint:     "Run without --non-interactive and with a TTY, or use CLI subcommands",
				NextStep: "chatsync threads",
			}
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		mode, err := portal.ParseSidebarMode(cfg.TUI.Sidebar)
		if err != nil {
			return err
		}

		// Log lines would tear the alternate screen.
		if cfg.Logging.File == "" {
			logging.Discard()
		}

		s, err := openSession(ctx, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		return tui.Run(ctx, s, tui.Config{
			RefreshInterval: cfg.TUI.RefreshInterval,
			ShowTimestamps:  cfg.TUI.ShowTimestamps,
			Sidebar:         mode,
		})
	},
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
