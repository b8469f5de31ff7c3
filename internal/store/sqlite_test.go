package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playdo-labs/playdo/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "playdo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func userMsg(t *testing.T, text string) domain.Message {
	t.Helper()
	m, err := domain.NewUserMessage(text, domain.Absent(), domain.Absent(), domain.Absent())
	require.NoError(t, err)
	return m
}

func assistantMsg(t *testing.T, text string) domain.Message {
	t.Helper()
	m, err := domain.NewAssistantMessage(text)
	require.NoError(t, err)
	return m
}

func TestConversationScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conv.ID)
	assert.Empty(t, conv.Messages)

	first, err := s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "hi")})
	require.NoError(t, err)
	require.Len(t, first.Messages, 1)

	second, err := s.AppendMessages(ctx, conv.ID, []domain.Message{assistantMsg(t, "hello")})
	require.NoError(t, err)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, domain.RoleUser, second.Messages[0].Role)
	assert.Equal(t, "hi", second.Messages[0].JoinedText())
	assert.Equal(t, domain.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, "hello", second.Messages[1].JoinedText())
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	var seqs []int64
	rows, err := s.db.Query(`SELECT sequence_number FROM message WHERE conversation_id = ? ORDER BY id`, conv.ID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var n int64
		require.NoError(t, rows.Scan(&n))
		seqs = append(seqs, n)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int64{0, 1}, seqs)
}

func TestAppendPreservesBatchOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	batches := [][]string{{"a"}, {"b", "c", "d"}, {"e", "f"}}
	var want []string
	for _, batch := range batches {
		var msgs []domain.Message
		for _, text := range batch {
			msgs = append(msgs, userMsg(t, text))
			want = append(want, text)
		}
		_, err := s.AppendMessages(ctx, conv.ID, msgs)
		require.NoError(t, err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, len(want))
	for i, m := range got.Messages {
		assert.Equal(t, want[i], m.JoinedText())
	}
}

func TestReconstructionIgnoresPhysicalOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	// Rows inserted out of sequence order must still load in sequence order.
	for _, row := range []struct {
		seq  int
		text string
	}{{2, "third"}, {0, "first"}, {1, "second"}} {
		_, err := s.db.Exec(`INSERT INTO message (conversation_id, sequence_number, role, content)
			VALUES (?, ?, 'user', ?)`, conv.ID, row.seq, `[{"type":"text","text":"`+row.text+`"}]`)
		require.NoError(t, err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "first", got.Messages[0].JoinedText())
	assert.Equal(t, "second", got.Messages[1].JoinedText())
	assert.Equal(t, "third", got.Messages[2].JoinedText())

	next, err := s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "fourth")})
	require.NoError(t, err)
	assert.Equal(t, "fourth", next.Messages[3].JoinedText())
}

func TestContextFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	empty, err := domain.NewUserMessage("empty", domain.Text(""), domain.Text(""), domain.Text(""))
	require.NoError(t, err)
	absent := userMsg(t, "absent")
	stale, err := domain.NewUserMessage("stale", domain.Text("x = 1"), domain.Absent(), domain.Absent())
	require.NoError(t, err)
	ran, err := domain.NewUserMessage("ran", domain.Text("print(1)"), domain.Text("1\n"), domain.Text("warn"))
	require.NoError(t, err)

	in := []domain.Message{empty, absent, stale, ran}
	_, err = s.AppendMessages(ctx, conv.ID, in)
	require.NoError(t, err)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, in, got.Messages)

	assert.Equal(t, domain.TextEmpty, got.Messages[0].Stdout.State())
	assert.Equal(t, domain.TextAbsent, got.Messages[1].EditorCode.State())
	assert.Equal(t, domain.TextAbsent, got.Messages[2].Stderr.State())
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetConversation(ctx, 42)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "conversation", nf.Resource)

	_, err = s.AppendMessages(ctx, 42, []domain.Message{userMsg(t, "hi")})
	assert.True(t, domain.IsNotFound(err))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM message`).Scan(&count))
	assert.Zero(t, count)
}

func TestAppendRejectsInvalidBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	_, err = s.AppendMessages(ctx, conv.ID, nil)
	assert.True(t, domain.IsValidation(err))

	bad := domain.Message{
		Role:    domain.RoleUser,
		Content: []domain.ContentBlock{domain.NewTextBlock("x")},
		Stdout:  domain.Text("out"),
	}
	_, err = s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "ok"), bad})
	assert.True(t, domain.IsValidation(err))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestGetConversationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "hi"), assistantMsg(t, "yo")})
	require.NoError(t, err)

	a, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	b, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(-time.Hour) }
	got, err := s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "hi")})
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(base))

	s.now = func() time.Time { return base.Add(time.Minute) }
	got, err = s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "again")})
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Minute)))
	assert.True(t, got.CreatedAt.Equal(base))
}

func TestConcurrentAppendsAreGapFree(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, _ := domain.NewUserMessage("m", domain.Absent(), domain.Absent(), domain.Absent())
			if _, err := s.AppendMessages(ctx, conv.ID, []domain.Message{m, m}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append failed: %v", err)
	}

	rows, err := s.db.Query(`SELECT sequence_number FROM message WHERE conversation_id = ? ORDER BY sequence_number`, conv.ID)
	require.NoError(t, err)
	defer rows.Close()
	var expected int64
	for rows.Next() {
		var n int64
		require.NoError(t, rows.Scan(&n))
		assert.Equal(t, expected, n)
		expected++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, int64(writers*2), expected)
}

func TestDuplicateSequenceFailsLoudly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "hi")})
	require.NoError(t, err)

	_, err = s.db.Exec(`INSERT INTO message (conversation_id, sequence_number, role, content)
		VALUES (?, 0, 'user', '[]')`, conv.ID)
	require.Error(t, err)
}

func TestListConversationIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids, err := s.ListConversationIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for i := 0; i < 3; i++ {
		_, err := s.CreateConversation(ctx)
		require.NoError(t, err)
	}
	ids, err = s.ListConversationIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "playdo.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, conv.ID, []domain.Message{userMsg(t, "persisted")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "persisted", got.Messages[0].JoinedText())
}

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := &domain.User{Username: "ada", Email: "Ada@Example.COM", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)

	byEmail, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byName, err := s.GetUserByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.False(t, byName.IsAdmin)

	err = s.CreateUser(ctx, &domain.User{Username: "ada", Email: "other@example.com", PasswordHash: "h"})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "username already exists", conflict.Message)

	err = s.CreateUser(ctx, &domain.User{Username: "bob", Email: "ada@example.com", PasswordHash: "h"})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email already exists", conflict.Message)

	admin := true
	updated, err := s.UpdateUser(ctx, u.ID, domain.UserUpdate{IsAdmin: &admin})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)
	assert.Equal(t, "ada", updated.Username)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.GetUser(ctx, u.ID)
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(s.DeleteUser(ctx, u.ID)))

	_, err = s.UpdateUser(ctx, u.ID, domain.UserUpdate{IsAdmin: &admin})
	assert.True(t, errors.As(err, new(*domain.NotFoundError)))
}
