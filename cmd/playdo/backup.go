package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playdo-labs/playdo/internal/store"
)

// userRecord is the backup form of a user. Unlike the API form it keeps the
// password hash so a backup can be restored.
type userRecord struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type userBackup struct {
	CreatedAt time.Time    `json:"created_at"`
	Reason    string       `json:"reason"`
	Users     []userRecord `json:"users"`
}

// backupUsers writes every user to a timestamped JSON file in dir and returns
// its path. An empty dir disables backups.
func backupUsers(ctx context.Context, users store.UserRepository, dir, reason string, now time.Time) (string, error) {
	if dir == "" {
		return "", nil
	}

	all, err := users.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("backup users: %w", err)
	}

	backup := userBackup{
		CreatedAt: now.UTC(),
		Reason:    reason,
		Users:     make([]userRecord, 0, len(all)),
	}
	for _, u := range all {
		backup.Users = append(backup.Users, userRecord{
			ID:           u.ID,
			Username:     u.Username,
			Email:        u.Email,
			PasswordHash: u.PasswordHash,
			IsAdmin:      u.IsAdmin,
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.UpdatedAt,
		})
	}

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("users-%s.json", now.UTC().Format("20060102T150405.000Z"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}
