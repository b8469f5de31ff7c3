// Playdo operator CLI: account management, conversation inspection and a
// terminal chat client that talks to the tutor directly.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/playdo-labs/playdo/internal/config"
	"github.com/playdo-labs/playdo/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	dbPath string
	debug  bool

	cfg    *config.Config
	logger *slog.Logger
	in     *bufio.Reader
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "playdo",
		Short:        "Operate a Playdo database",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			if a.dbPath == "" {
				a.dbPath = cfg.DBPath
			}

			level := slog.LevelWarn
			if a.debug || cfg.Debug {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.dbPath, "db-path", "", "SQLite database path (default $PLAYDO_DATABASE_PATH or ./data/playdo.db)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newUsersCommand(a))
	cmd.AddCommand(newConversationsCommand(a))
	cmd.AddCommand(newChatCommand(a))

	return cmd
}

func (a *app) openStore() (*store.SQLiteStore, error) {
	repo, err := store.NewSQLite(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.dbPath, err)
	}
	return repo, nil
}

func (a *app) reader(cmd *cobra.Command) *bufio.Reader {
	if a.in == nil {
		a.in = bufio.NewReader(cmd.InOrStdin())
	}
	return a.in
}

// readLine returns the next input line without its newline. io.EOF is only
// returned when no data was read.
func (a *app) readLine(cmd *cobra.Command) (string, error) {
	line, err := a.reader(cmd).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// prompt writes label and reads one line.
func (a *app) prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	return a.readLine(cmd)
}

// confirm asks a yes/no question; anything but y or yes is no.
func (a *app) confirm(cmd *cobra.Command, question string) (bool, error) {
	answer, err := a.prompt(cmd, question+" [y/N]: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readPassword prompts without echo on a terminal and falls back to plain
// line reads for piped input.
func (a *app) readPassword(cmd *cobra.Command, label string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), label)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	return a.prompt(cmd, label)
}

// newPassword reads a password twice and requires both entries to match.
func (a *app) newPassword(cmd *cobra.Command) (string, error) {
	password, err := a.readPassword(cmd, "Password: ")
	if err != nil {
		return "", err
	}
	again, err := a.readPassword(cmd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != again {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}
