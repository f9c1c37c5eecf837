package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
)

func TestPersistMessageCreatesSessionLazily(t *testing.T) {
	mem, store, _ := newTestMemory(t)
	ctx := context.Background()

	msg, err := mem.PersistMessage(ctx, PersistMessageInput{
		SessionID: "sess-1",
		Type:      models.MessageUser,
		Content:   strings.Repeat("a", 400),
		OwnerID:   strptr("user-1"),
		Agent:     "helper",
	})
	require.NoError(t, err)
	assert.Equal(t, 100, msg.TokenCount, "estimated at four chars per token")

	sess, err := store.GetSession(ctx, "sess-1", db.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SessionModeChat, sess.Mode)
	assert.Equal(t, "helper", sess.Agent)
	assert.Equal(t, 100, sess.TotalTokens)

	// second write reuses the session and accumulates tokens
	_, err = mem.PersistMessage(ctx, PersistMessageInput{
		SessionID:  "sess-1",
		Type:       models.MessageAssistant,
		Content:    "short reply",
		TokenCount: 42,
	})
	require.NoError(t, err)

	sess, err = store.GetSession(ctx, "sess-1", db.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 142, sess.TotalTokens, "explicit count wins over the estimate")
}

func TestPersistMessageGeneratesSessionID(t *testing.T) {
	mem, store, _ := newTestMemory(t)

	msg, err := mem.PersistMessage(context.Background(), PersistMessageInput{
		Type:    models.MessageUser,
		Content: "hello",
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg.SessionID)

	_, err = store.GetSession(context.Background(), msg.SessionID, db.ReadOptions{})
	assert.NoError(t, err)
}

func TestPersistMessageValidation(t *testing.T) {
	mem, _, _ := newTestMemory(t)

	_, err := mem.PersistMessage(context.Background(), PersistMessageInput{
		SessionID: "sess-1",
		Type:      models.MessageUser,
	})
	assert.ErrorIs(t, err, db.ErrMalformedInput)

	_, err = mem.PersistMessage(context.Background(), PersistMessageInput{
		SessionID: "sess-1",
		Content:   "no type",
	})
	assert.ErrorIs(t, err, db.ErrMalformedInput)
}

func TestPersistMessageHonorsImportTimestamp(t *testing.T) {
	mem, store, clock := newTestMemory(t)
	ctx := context.Background()

	past := clock.Now().Add(-24 * time.Hour)
	msg, err := mem.PersistMessage(ctx, PersistMessageInput{
		SessionID: "sess-1",
		Type:      models.MessageUser,
		Content:   "imported turn",
		CreatedAt: past,
	})
	require.NoError(t, err)
	assert.True(t, msg.CreatedAt.Equal(past))

	stored := store.messages[msg.ID]
	assert.True(t, stored.CreatedAt.Equal(past))
}
