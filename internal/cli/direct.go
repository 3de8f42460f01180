package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dmUse bool

func init() {
	rootCmd.AddCommand(dmCmd)
	dmCmd.AddCommand(dmStartCmd)

	dmStartCmd.Flags().BoolVar(&dmUse, "use", false, "select the thread for later commands")
}

var dmCmd = &cobra.Command{
	Use:   "dm",
	Short: "Direct threads",
}

var dmStartCmd = &cobra.Command{
	Use:   "start <user-id>",
	Short: "Find or create a direct thread with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		userID, err := sessionUserID()
		if err != nil {
			return err
		}

		thread, err := client.StartDirect(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		title := thread.Summary(userID).Title

		if dmUse {
			if err := selectionFile().Select(thread.Ref(), title); err != nil {
				return err
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, thread)
		}
		fmt.Fprintf(os.Stdout, "Direct thread with %s: %s\n", title, thread.Ref().Key())
		return nil
	},
}
