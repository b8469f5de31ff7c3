// Package auth handles password hashing, access tokens and account management.
package auth

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/playdo-labs/playdo/internal/domain"
)

const (
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 12
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// ErrWeakPassword is wrapped by password policy failures.
var ErrWeakPassword = errors.New("password does not meet complexity requirements")

// ValidatePassword enforces the password policy: at least 12 characters with
// at least one letter and one digit.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return weakPassword(fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return weakPassword(fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return weakPassword("must contain both letters and numbers")
	}
	return nil
}

func weakPassword(detail string) error {
	return &domain.ValidationError{
		Field:   "password",
		Message: fmt.Sprintf("%v: %s", ErrWeakPassword, detail),
	}
}

// HashPassword validates and hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
