package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playdo-labs/playdo/internal/domain"
	"github.com/playdo-labs/playdo/internal/store"
)

const testSecret = "test-secret-test-secret-test-secret"

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"", false},
		{"short1", false},
		{"onlyletterslong", false},
		{"123456789012345", false},
		{"letters4andnums", true},
		{"пароль123456", true},
		{strings.Repeat("a1", 40), false},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if tt.ok {
			assert.NoError(t, err, tt.password)
			continue
		}
		var verr *domain.ValidationError
		if assert.ErrorAs(t, err, &verr, tt.password) {
			assert.Equal(t, "password", verr.Field)
		}
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse 9 battery")
	require.NoError(t, err)
	assert.NotContains(t, hash, "horse")
	assert.True(t, CheckPassword(hash, "correct horse 9 battery"))
	assert.False(t, CheckPassword(hash, "correct horse 8 battery"))

	_, err = HashPassword("weak")
	assert.True(t, domain.IsValidation(err))
}

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService(testSecret, time.Hour)
	user := &domain.User{ID: 7, Username: "ada", Email: "ada@example.com", IsAdmin: true}

	token, expiresAt, err := ts.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := ts.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "ada", claims.Username)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "7", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	other, _, err := ts.Issue(user)
	require.NoError(t, err)
	otherClaims, err := ts.Parse(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID)
}

func TestTokenRejections(t *testing.T) {
	ts := NewTokenService(testSecret, time.Hour)
	user := &domain.User{ID: 1, Username: "ada"}

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewTokenService("another-secret-another-secret-xx", time.Hour).Issue(user)
		require.NoError(t, err)
		_, err = ts.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewTokenService(testSecret, time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := past.Issue(user)
		require.NoError(t, err)
		_, err = ts.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = ts.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ts.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func newUserService(t *testing.T) *UserService {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return NewUserService(repo, NewTokenService(testSecret, time.Hour), nil)
}

func TestUserServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	user, err := svc.CreateUser(ctx, CreateUserInput{
		Username: "ada",
		Email:    "Ada@Example.com",
		Password: "lovelace1815!",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = svc.CreateUser(ctx, CreateUserInput{Username: "ada", Email: "x@example.com", Password: "lovelace1815!"})
	assert.True(t, domain.IsConflict(err))

	_, err = svc.CreateUser(ctx, CreateUserInput{Username: "bob", Email: "not-an-email", Password: "lovelace1815!"})
	assert.True(t, domain.IsValidation(err))

	res, err := svc.Login(ctx, "ada", "lovelace1815!")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, user.ID, res.User.ID)

	_, err = svc.Login(ctx, "ada", "wrong-password-1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "lovelace1815!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	newPassword := "analytical2engine"
	admin := true
	updated, err := svc.UpdateUser(ctx, user.ID, UpdateUserInput{Password: &newPassword, IsAdmin: &admin})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)

	_, err = svc.Login(ctx, "ada", "lovelace1815!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ada", newPassword)
	require.NoError(t, err)

	weak := "weak"
	_, err = svc.UpdateUser(ctx, user.ID, UpdateUserInput{Password: &weak})
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, svc.DeleteUser(ctx, user.ID))
	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestLoginWithoutTokenService(t *testing.T) {
	svc := NewUserService(nil, nil, nil)
	_, err := svc.Login(context.Background(), "a", "b")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}
