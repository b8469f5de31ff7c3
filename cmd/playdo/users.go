package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/playdo-labs/playdo/internal/auth"
	"github.com/playdo-labs/playdo/internal/store"
)

func newUsersCommand(a *app) *cobra.Command {
	var backupDir string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "./backups", "Directory for user table backups written before each change (empty disables)")

	cmd.AddCommand(newUsersCreateCommand(a, &backupDir))
	cmd.AddCommand(newUsersListCommand(a))
	cmd.AddCommand(newUsersUpdateCommand(a, &backupDir))
	cmd.AddCommand(newUsersDeleteCommand(a, &backupDir))

	return cmd
}

// withUsers opens the store, runs fn with a user service and closes the store.
func (a *app) withUsers(fn func(repo *store.SQLiteStore, users *auth.UserService) error) error {
	repo, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			a.logger.Error("failed to close database", "error", closeErr)
		}
	}()
	return fn(repo, auth.NewUserService(repo, nil, a.logger))
}

func (a *app) backup(cmd *cobra.Command, repo store.UserRepository, dir, reason string) error {
	path, err := backupUsers(cmd.Context(), repo, dir, reason, time.Now())
	if err != nil {
		return err
	}
	if path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Backed up users to %s\n", path)
	}
	return nil
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func newUsersCreateCommand(a *app, backupDir *string) *cobra.Command {
	var (
		username string
		email    string
		admin    bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if admin && !force {
				ok, err := a.confirm(cmd, fmt.Sprintf("Create %q as an administrator?", username))
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("aborted")
				}
			}

			password, err := a.newPassword(cmd)
			if err != nil {
				return err
			}
			if err := auth.ValidatePassword(password); err != nil {
				return err
			}

			return a.withUsers(func(repo *store.SQLiteStore, users *auth.UserService) error {
				if err := a.backup(cmd, repo, *backupDir, "create "+username); err != nil {
					return err
				}
				user, err := users.CreateUser(cmd.Context(), auth.CreateUserInput{
					Username: username,
					Email:    email,
					Password: password,
					IsAdmin:  admin,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s)\n", user.ID, user.Username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant administrator access")
	cmd.Flags().BoolVar(&force, "force", false, "Skip the administrator confirmation")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUsersListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withUsers(func(_ *store.SQLiteStore, users *auth.UserService) error {
				all, err := users.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if len(all) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No users.")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tADMIN\tCREATED")
				for _, u := range all {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n",
						u.ID, u.Username, u.Email, u.IsAdmin, u.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func newUsersUpdateCommand(a *app, backupDir *string) *cobra.Command {
	var (
		username string
		email    string
		admin    bool
		password bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			var in auth.UpdateUserInput
			if cmd.Flags().Changed("username") {
				in.Username = &username
			}
			if cmd.Flags().Changed("email") {
				in.Email = &email
			}
			if cmd.Flags().Changed("admin") {
				in.IsAdmin = &admin
			}
			if password {
				pw, err := a.newPassword(cmd)
				if err != nil {
					return err
				}
				in.Password = &pw
			}

			return a.withUsers(func(repo *store.SQLiteStore, users *auth.UserService) error {
				if err := a.backup(cmd, repo, *backupDir, "update "+args[0]); err != nil {
					return err
				}
				user, err := users.UpdateUser(cmd.Context(), id, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated user %d (%s)\n", user.ID, user.Username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "New username")
	cmd.Flags().StringVar(&email, "email", "", "New email address")
	cmd.Flags().BoolVar(&admin, "admin", false, "Set administrator access")
	cmd.Flags().BoolVar(&password, "password", false, "Prompt for a new password")

	return cmd
}

func newUsersDeleteCommand(a *app, backupDir *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			return a.withUsers(func(repo *store.SQLiteStore, users *auth.UserService) error {
				user, err := users.GetUser(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !force {
					ok, err := a.confirm(cmd, fmt.Sprintf("Delete user %d (%s)?", user.ID, user.Username))
					if err != nil {
						return err
					}
					if !ok {
						return errors.New("aborted")
					}
				}
				if err := a.backup(cmd, repo, *backupDir, "delete "+args[0]); err != nil {
					return err
				}
				if err := users.DeleteUser(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %d (%s)\n", user.ID, user.Username)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}
