package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/models"
)

var useClear bool

func init() {
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(contextCmd)

	useCmd.Flags().BoolVar(&useClear, "clear", false, "clear the selected thread")
}

var useCmd = &cobra.Command{
	Use:   "use [thread]",
	Short: "Select a thread for later commands",
	Long: `Select the thread that read, send and mark-read use when no thread is
given. The selection is stored in ~/.config/chatsync/context.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := selectionFile()
		if useClear {
			if err := file.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "Context cleared")
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("thread required (or --clear)")
		}

		ref, err := models.ParseThreadRef(args[0])
		if err != nil {
			return err
		}
		if err := file.Select(ref, ""); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Using %s\n", ref.Key())
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show the selected thread",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := selectionFile().Read()
		if err != nil {
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, current)
		}
		fmt.Fprintln(os.Stdout, current.String())
		return nil
	},
}
