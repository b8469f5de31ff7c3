package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/playdo-labs/playdo/internal/domain"
)

func newConversationsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect stored conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversation ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			ids, err := repo.ListConversationIDs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			conv, err := repo.GetConversation(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %d (created %s, updated %s)\n",
				conv.ID, conv.CreatedAt.Format("2006-01-02 15:04:05"), conv.UpdatedAt.Format("2006-01-02 15:04:05"))
			for i, msg := range conv.Messages {
				if err := printMessage(cmd.OutOrStdout(), i, msg); err != nil {
					return err
				}
			}
			return nil
		},
	})

	return cmd
}

// printMessage writes one message. User messages that carry editor context
// are shown in the XML form sent to the tutor.
func printMessage(w io.Writer, seq int, msg domain.Message) error {
	fmt.Fprintf(w, "\n[%d] %s:\n", seq, msg.Role)
	if msg.Role == domain.RoleUser && msg.HasContext() {
		xml, err := msg.ContextXML()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, indent(xml))
		return nil
	}
	fmt.Fprintln(w, indent(msg.JoinedText()))
	return nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
