package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shourk/messaging/backend/internal/auth"
	"github.com/shourk/messaging/backend/internal/model/chat"
)

func TestSessionsPutAndList(t *testing.T) {
	req := require.New(t)
	db := filepath.Join(t.TempDir(), "db")
	var out bytes.Buffer

	req.NoError(run(context.Background(), []string{"sessions", "put", "-db", db, "-domain", "expert_expert", "-a", "E1", "-b", "E2"}, &out))
	req.Contains(out.String(), "E1<->E2 confirmed")

	out.Reset()
	req.NoError(run(context.Background(), []string{"sessions", "list", "-db", db, "-domain", "expert_expert", "-id", "E2"}, &out))
	req.Contains(out.String(), "E1")
	req.Contains(strings.ToLower(out.String()), "confirmed")
}

func TestMessagesOnEmptyStore(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	req.NoError(run(context.Background(), []string{"messages", "-db", filepath.Join(t.TempDir(), "db")}, &out))
	req.Contains(strings.ToUpper(out.String()), "DOMAIN")
}

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	req.NoError(run(context.Background(), []string{"token", "-id", "E1", "-role", "expert", "-secret", "s"}, &out))

	caller, err := auth.NewIssuer("s", time.Hour).Verify(strings.TrimSpace(out.String()))
	req.NoError(err)
	req.Equal(chat.Caller{ID: "E1", Role: chat.RoleExpert}, caller)
}

func TestMessagesConversationFilter(t *testing.T) {
	req := require.New(t)
	db := filepath.Join(t.TempDir(), "db")

	// Given two conversations in the store
	store, err := openStore(db)
	req.NoError(err)
	_, err = store.Insert(context.Background(), chat.Message{Domain: chat.DomainUserExpert, SenderID: "U1", ReceiverID: "E1", Text: "hello expert"})
	req.NoError(err)
	_, err = store.Insert(context.Background(), chat.Message{Domain: chat.DomainExpertExpert, SenderID: "E1", ReceiverID: "E2", Text: "hello peer"})
	req.NoError(err)
	req.NoError(store.Close())

	// When listing one pair
	var out bytes.Buffer
	req.NoError(run(context.Background(), []string{"messages", "-db", db, "-a", "E1", "-b", "U1"}, &out))

	// Then only that pair is printed
	req.Contains(out.String(), "hello expert")
	req.NotContains(out.String(), "hello peer")

	req.Error(run(context.Background(), []string{"messages", "-db", db, "-a", "E1"}, &out))
}

func TestUsage(t *testing.T) {
	req := require.New(t)

	req.ErrorIs(run(context.Background(), nil, &bytes.Buffer{}), errUsage)
	req.ErrorIs(run(context.Background(), []string{"sessions"}, &bytes.Buffer{}), errUsage)
	req.ErrorIs(run(context.Background(), []string{"bogus"}, &bytes.Buffer{}), errUsage)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab…", truncate("abcdef", 3))
}
