package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playdo-labs/playdo/internal/bridge"
	"github.com/playdo-labs/playdo/internal/domain"
	"github.com/playdo-labs/playdo/internal/store"
)

const cliPassword = "hunter2hunter2"

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestUsersCreateAndList(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "playdo.db")
	backups := filepath.Join(dir, "backups")

	out, _, err := runCLI(t, cliPassword+"\n"+cliPassword+"\n",
		"--db-path", dbPath, "users", "create", "--backup-dir", backups,
		"--username", "ada", "--email", "Ada@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user 1 (ada)")

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	out, _, err = runCLI(t, "", "--db-path", dbPath, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "ada@example.com")
}

func TestUsersCreateRejectsMismatchedPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "playdo.db")

	_, _, err := runCLI(t, cliPassword+"\nsomething-else-1\n",
		"--db-path", dbPath, "users", "create", "--backup-dir", "",
		"--username", "ada", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passwords do not match")
}

func TestUsersCreateAdminNeedsConfirmation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "playdo.db")

	_, _, err := runCLI(t, "n\n",
		"--db-path", dbPath, "users", "create", "--backup-dir", "",
		"--username", "root", "--email", "root@example.com", "--admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")

	out, _, err := runCLI(t, cliPassword+"\n"+cliPassword+"\n",
		"--db-path", dbPath, "users", "create", "--backup-dir", "",
		"--username", "root", "--email", "root@example.com", "--admin", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user")
}

func TestUsersUpdateAndDelete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "playdo.db")

	_, _, err := runCLI(t, cliPassword+"\n"+cliPassword+"\n",
		"--db-path", dbPath, "users", "create", "--backup-dir", "",
		"--username", "ada", "--email", "ada@example.com")
	require.NoError(t, err)

	out, _, err := runCLI(t, "", "--db-path", dbPath, "users", "update", "1",
		"--backup-dir", "", "--username", "lovelace")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated user 1 (lovelace)")

	_, _, err = runCLI(t, "no\n", "--db-path", dbPath, "users", "delete", "1", "--backup-dir", "")
	require.Error(t, err)

	out, _, err = runCLI(t, "", "--db-path", dbPath, "users", "delete", "1", "--backup-dir", "", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted user 1 (lovelace)")

	out, _, err = runCLI(t, "", "--db-path", dbPath, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users.")
}

func TestChatOffline(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "playdo.db")
	codePath := filepath.Join(dir, "main.py")
	require.NoError(t, os.WriteFile(codePath, []byte("print(1)"), 0o600))

	stdin := strings.Join([]string{
		"hello",
		"/code " + codePath,
		"/output",
		"1",
		".",
		".",
		"why does it print 1?",
		"/quit",
	}, "\n") + "\n"

	out, _, err := runCLI(t, stdin, "--db-path", dbPath, "chat", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation 1 (static)")
	assert.Equal(t, 2, strings.Count(out, "playdo: "+bridge.DefaultStaticReply))

	out, _, err = runCLI(t, "", "--db-path", dbPath, "conversations", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[0] user:\n  hello")
	assert.Contains(t, out, "<code>print(1)</code>")
	assert.Contains(t, out, "<stdout>1&#xA;</stdout>")
	assert.Contains(t, out, "<stderr></stderr>")

	out, _, err = runCLI(t, "", "--db-path", dbPath, "conversations", "list")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestBackupUsers(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "playdo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, &domain.User{
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "$2a$10$hash",
	}))

	path, err := backupUsers(ctx, repo, "", "noop", time.Now())
	require.NoError(t, err)
	assert.Empty(t, path)

	dir := filepath.Join(t.TempDir(), "backups")
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	path, err = backupUsers(ctx, repo, dir, "delete 1", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users-20261018T093000.000Z.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var backup userBackup
	require.NoError(t, json.Unmarshal(data, &backup))
	assert.Equal(t, "delete 1", backup.Reason)
	require.Len(t, backup.Users, 1)
	assert.Equal(t, "$2a$10$hash", backup.Users[0].PasswordHash)
}
