package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/playdo-labs/playdo/internal/bridge"
	"github.com/playdo-labs/playdo/internal/chat"
	"github.com/playdo-labs/playdo/internal/domain"
)

const chatHelp = `Commands:
  /code <file>   attach the file as editor code to the next messages
  /output        enter stdout and stderr for the attached code
  /clear         detach code and output
  /retry         ask again after a failed reply
  /quit          exit`

// chatSession holds the editor state attached to outgoing messages.
type chatSession struct {
	code   domain.OptionalText
	stdout domain.OptionalText
	stderr domain.OptionalText
}

func newChatCommand(a *app) *cobra.Command {
	var (
		conversationID int64
		offline        bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the tutor from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if offline {
				a.cfg.Testing = true
			}

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			responder, err := bridge.New(a.cfg, a.logger)
			if err != nil {
				return err
			}
			svc := chat.NewService(repo, responder, a.logger)
			out := cmd.OutOrStdout()

			var conv *domain.Conversation
			if conversationID > 0 {
				conv, err = svc.GetConversation(cmd.Context(), conversationID)
			} else {
				conv, err = svc.CreateConversation(cmd.Context())
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Conversation %d (%s). Type /help for commands.\n", conv.ID, responder.Provider())
			for i, msg := range conv.Messages {
				if err := printMessage(out, i, msg); err != nil {
					return err
				}
			}

			session := &chatSession{}
			for {
				line, err := a.prompt(cmd, "\n> ")
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}

				if strings.HasPrefix(line, "/") {
					done, err := a.chatCommand(cmd, session, line)
					if err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
					}
					if done {
						return nil
					}
					if line == "/retry" {
						a.reply(cmd, func() (*domain.Conversation, error) {
							return svc.RetryResponse(cmd.Context(), conv.ID)
						})
					}
					continue
				}

				a.reply(cmd, func() (*domain.Conversation, error) {
					return svc.SendMessage(cmd.Context(), conv.ID, chat.SendMessageInput{
						Text:       line,
						EditorCode: session.code,
						Stdout:     session.stdout,
						Stderr:     session.stderr,
					})
				})
			}
		},
	}

	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Continue an existing conversation")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the canned offline reply instead of an LLM")

	return cmd
}

// reply runs one turn and prints the assistant's message. Failures are
// printed and the loop continues.
func (a *app) reply(cmd *cobra.Command, turn func() (*domain.Conversation, error)) {
	conv, err := turn()
	if err != nil {
		if domain.IsBridge(err) {
			fmt.Fprintln(cmd.ErrOrStderr(), "The tutor did not answer. Your message was saved; type /retry to try again.")
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return
	}
	if last, ok := conv.LastMessage(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "\nplaydo: %s\n", last.JoinedText())
	}
}

// chatCommand handles a slash command and reports whether to exit.
func (a *app) chatCommand(cmd *cobra.Command, s *chatSession, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(cmd.OutOrStdout(), chatHelp)
	case "/code":
		if arg == "" {
			return false, errors.New("usage: /code <file>")
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return false, err
		}
		s.code = domain.Text(string(data))
		s.stdout, s.stderr = domain.Absent(), domain.Absent()
		fmt.Fprintf(cmd.OutOrStdout(), "Attached %s (%d bytes). Output cleared.\n", arg, len(data))
	case "/output":
		if !s.code.Present() {
			return false, errors.New("attach code with /code first")
		}
		stdout, err := a.readBlock(cmd, "stdout")
		if err != nil {
			return false, err
		}
		stderr, err := a.readBlock(cmd, "stderr")
		if err != nil {
			return false, err
		}
		s.stdout, s.stderr = domain.Text(stdout), domain.Text(stderr)
	case "/clear":
		*s = chatSession{}
		fmt.Fprintln(cmd.OutOrStdout(), "Detached code and output.")
	case "/retry":
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// readBlock reads lines until a lone "." line.
func (a *app) readBlock(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s, end with a line containing only \".\"\n", label)
	var lines []string
	for {
		line, err := a.readLine(cmd)
		if err != nil {
			return "", err
		}
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}
