package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/models"
)

var (
	groupCreateDescription string
	groupCreateMembers     []string
)

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsCreateCmd)
	groupsCmd.AddCommand(groupsDeleteCmd)
	groupsCmd.AddCommand(groupsMembersCmd)
	groupsCmd.AddCommand(groupsAddMemberCmd)
	groupsCmd.AddCommand(groupsRemoveMemberCmd)

	groupsCreateCmd.Flags().StringVarP(&groupCreateDescription, "description", "d", "", "group description")
	groupsCreateCmd.Flags().StringSliceVarP(&groupCreateMembers, "member", "m", nil, "member user id (repeatable)")
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Manage chat groups",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		userID, err := sessionUserID()
		if err != nil {
			return err
		}
		groups, err := client.UserGroups(commandContext(cmd), userID)
		if err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, groups)
		}
		if len(groups) == 0 {
			fmt.Fprintln(os.Stdout, "No groups found.")
			return nil
		}
		rows := make([][]string, 0, len(groups))
		for _, g := range groups {
			rows = append(rows, []string{g.ID, truncate(g.Name, 28), strconv.Itoa(len(g.Members)), strconv.Itoa(g.UnreadCount)})
		}
		return writeTable(os.Stdout, []string{"ID", "NAME", "MEMBERS", "UNREAD"}, rows)
	},
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group",
	Long:  "Create a group. You are added as a member and recorded as its creator.",
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

		draft := models.GroupDraft{
			Name:        strings.TrimSpace(args[0]),
			Description: groupCreateDescription,
			Members:     appendUnique(groupCreateMembers, userID),
			CreatedBy:   userID,
		}
		group, err := client.CreateGroup(commandContext(cmd), draft)
		if err != nil {
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, group)
		}
		fmt.Fprintf(os.Stdout, "Created group %s (%s)\n", group.Name, group.ID)
		return nil
	},
}

var groupsDeleteCmd = &cobra.Command{
	Use:   "delete <group-id>",
	Short: "Delete a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.DeleteGroup(commandContext(cmd), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deleted group %s\n", args[0])
		return nil
	},
}

var groupsMembersCmd = &cobra.Command{
	Use:   "members <group-id>",
	Short: "List group members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		members, err := client.GroupMembers(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, members)
		}
		rows := make([][]string, 0, len(members))
		for _, u := range members {
			rows = append(rows, []string{u.ID, u.FullName, string(u.Role)})
		}
		return writeTable(os.Stdout, []string{"ID", "NAME", "ROLE"}, rows)
	},
}

var groupsAddMemberCmd = &cobra.Command{
	Use:   "add-member <group-id> <user-id>",
	Short: "Add a member to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.AddGroupMember(commandContext(cmd), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Added %s to %s\n", args[1], args[0])
		return nil
	},
}

var groupsRemoveMemberCmd = &cobra.Command{
	Use:   "remove-member <group-id> <user-id>",
	Short: "Remove a member from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.RemoveGroupMember(commandContext(cmd), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Removed %s from %s\n", args[1], args[0])
		return nil
	},
}

func sessionUserID() (string, error) {
	if appConfig == nil || strings.TrimSpace(appConfig.Session.UserID) == "" {
		return "", &PreflightError{
			Message:  "no signed-in user",
			Hint:     "set session.user_id in the config file or pass --user",
			NextStep: "chatsync --user <id> groups list",
		}
	}
	return strings.TrimSpace(appConfig.Session.UserID), nil
}

func appendUnique(list []string, id string) []string {
	out := make([]string, 0, len(list)+1)
	seen := make(map[string]struct{}, len(list)+1)
	for _, v := range append(list, id) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
