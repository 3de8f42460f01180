package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/models"
)

func init() {
	rootCmd.AddCommand(threadsCmd)
}

var threadsCmd = &cobra.Command{
	Use:     "threads",
	Aliases: []string{"inbox", "ls"},
	Short:   "List chat threads",
	Long:    "List your groups and direct threads with unread counts, most recent first.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		s, err := openSession(ctx, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		inbox := s.NewInbox()
		if err := inbox.Mount(ctx); err != nil {
			return err
		}
		threads := inbox.Threads()
		inbox.Unmount()

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, threadRows(threads))
		}
		if len(threads) == 0 {
			fmt.Fprintln(os.Stdout, "No threads found.")
			return nil
		}

		rows := make([][]string, 0, len(threads))
		for _, thread := range threads {
			rows = append(rows, []string{
				thread.Ref.Key(),
				truncate(thread.Title, 28),
				strconv.Itoa(thread.UnreadCount),
				formatWhen(thread.LastMessageTimestamp),
				truncate(thread.LastMessage, 40),
			})
		}
		if err := writeTable(os.Stdout, []string{"THREAD", "TITLE", "UNREAD", "LAST", "MESSAGE"}, rows); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\n%d unread\n", s.Aggregator().Total())
		return nil
	},
}

type threadRow struct {
	Thread      string `json:"thread"`
	Title       string `json:"title"`
	Unread      int    `json:"unread"`
	LastMessage string `json:"last_message,omitempty"`
	LastAt      string `json:"last_at,omitempty"`
}

func threadRows(threads []models.ThreadSummary) []threadRow {
	out := make([]threadRow, 0, len(threads))
	for _, thread := range threads {
		row := threadRow{
			Thread:      thread.Ref.Key(),
			Title:       thread.Title,
			Unread:      thread.UnreadCount,
			LastMessage: thread.LastMessage,
		}
		if !thread.LastMessageTimestamp.IsZero() {
			row.LastAt = thread.LastMessageTimestamp.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, row)
	}
	return out
}
