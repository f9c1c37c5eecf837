package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
)

func persistTurns(t *testing.T, mem *Memory, sessionID string, count, tokensEach int) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := mem.PersistMessage(context.Background(), PersistMessageInput{
			SessionID:  sessionID,
			Type:       models.MessageUser,
			Content:    fmt.Sprintf("turn %d of the conversation", i),
			TokenCount: tokensEach,
			OwnerID:    strptr("user-1"),
		})
		require.NoError(t, err)
	}
}

func TestMaybeBuildMomentChain(t *testing.T) {
	mem, store, _ := newTestMemory(t)
	ctx := context.Background()

	persistTurns(t, mem, "sess-1", 3, 200)

	res, err := mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err)
	require.NotNil(t, res.Moment)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 3, res.WindowMessages)
	assert.Equal(t, 600, res.WindowTokens)

	first := res.Moment
	assert.Equal(t, "sess-1-chunk-0", first.Name)
	assert.Equal(t, models.MomentSessionChunk, first.MomentType)
	assert.Equal(t, 0, first.ChunkIndex())
	assert.Empty(t, first.PreviousMomentKeys, "first chunk has no predecessor")
	require.NotNil(t, first.StartsTimestamp)
	require.NotNil(t, first.EndsTimestamp)
	assert.True(t, first.StartsTimestamp.Before(*first.EndsTimestamp))

	// session caches the build outcome
	sess, err := store.GetSession(ctx, "sess-1", db.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, sess.LatestMomentID())
	assert.Equal(t, 1, sess.MomentCount())
	assert.NotEmpty(t, sess.Metadata.String(models.MetaLatestSummary))

	// the next window starts after the previous chunk
	persistTurns(t, mem, "sess-1", 2, 400)

	res, err = mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err)
	require.NotNil(t, res.Moment)
	second := res.Moment
	assert.Equal(t, "sess-1-chunk-1", second.Name)
	assert.Equal(t, 1, second.ChunkIndex())
	assert.Equal(t, []string{"sess-1-chunk-0"}, second.PreviousMomentKeys)
	assert.Equal(t, 2, res.WindowMessages, "already summarized turns are excluded")
	assert.True(t, second.StartsTimestamp.After(*first.EndsTimestamp))

	sess, err = store.GetSession(ctx, "sess-1", db.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, sess.MomentCount())
	assert.Equal(t, second.ID, sess.LatestMomentID())
}

func TestMaybeBuildMomentEmptyWindow(t *testing.T) {
	mem, _, _ := newTestMemory(t)
	ctx := context.Background()

	persistTurns(t, mem, "sess-1", 2, 400)

	res, err := mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err)
	require.NotNil(t, res.Moment)

	// nothing new arrived since the last chunk
	res, err = mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err)
	assert.Nil(t, res.Moment)
	assert.Equal(t, SkipEmptyWindow, res.Skipped)
	assert.Equal(t, 0, res.WindowMessages)
}

func TestMaybeBuildMomentBoundaryIsExclusive(t *testing.T) {
	mem, _, _ := newTestMemory(t)
	ctx := context.Background()

	persistTurns(t, mem, "sess-1", 2, 400)
	res, err := mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err)
	require.NotNil(t, res.Moment)

	// a message stamped exactly at the chunk boundary belongs to the
	// already summarized span, never to the next window
	_, err = mem.PersistMessage(ctx, PersistMessageInput{
		SessionID:  "sess-1",
		Type:       models.MessageUser,
		Content:    "boundary turn",
		TokenCount: 900,
		CreatedAt:  *res.Moment.EndsTimestamp,
	})
	require.NoError(t, err)

	res, err = mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err)
	assert.Equal(t, SkipEmptyWindow, res.Skipped)
}

func TestMaybeBuildMomentThresholdMustBeExceeded(t *testing.T) {
	mem, _, _ := newTestMemory(t)
	ctx := context.Background()

	persistTurns(t, mem, "sess-1", 3, 100)

	// exactly at the threshold: no build
	res, err := mem.MaybeBuildMoment(ctx, "sess-1", 300)
	require.NoError(t, err)
	assert.Nil(t, res.Moment)
	assert.Equal(t, SkipThresholdNotMet, res.Skipped)
	assert.Equal(t, 300, res.WindowTokens)

	// one token over: build
	persistTurns(t, mem, "sess-1", 1, 1)
	res, err = mem.MaybeBuildMoment(ctx, "sess-1", 300)
	require.NoError(t, err)
	require.NotNil(t, res.Moment)
	assert.Equal(t, 301, res.WindowTokens)
}

func TestMaybeBuildMomentAdoptsConcurrentWinner(t *testing.T) {
	mem, store, _ := newTestMemory(t)
	ctx := context.Background()

	persistTurns(t, mem, "sess-1", 2, 400)
	res, err := mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err)
	winner := res.Moment
	require.NotNil(t, winner)

	persistTurns(t, mem, "sess-1", 2, 400)
	store.failCreates = 1

	res, err = mem.MaybeBuildMoment(ctx, "sess-1", 500)
	require.NoError(t, err, "losing the unique-chunk race is not an error")
	require.NotNil(t, res.Moment)
	assert.Equal(t, models.MomentSessionChunk, res.Moment.MomentType)
	assert.Empty(t, res.Skipped)
}

func TestMaybeBuildMomentValidation(t *testing.T) {
	mem, _, _ := newTestMemory(t)

	_, err := mem.MaybeBuildMoment(context.Background(), "", 500)
	assert.ErrorIs(t, err, db.ErrMalformedInput)

	_, err = mem.MaybeBuildMoment(context.Background(), "missing", 500)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeterministicSummary(t *testing.T) {
	msgs := []models.Message{
		{Type: models.MessageUser, Content: "How do I rotate the key?\nsecond line"},
		{Type: models.MessageToolCall, Content: `{"tool":"lookup"}`},
		{Type: models.MessageAssistant, Content: "Use the rotate command."},
	}

	got := DeterministicSummary(msgs)
	assert.Contains(t, got, "3 messages")
	assert.Contains(t, got, "How do I rotate the key?")
	assert.Contains(t, got, "Use the rotate command.")
	assert.NotContains(t, got, "second line", "only first lines are aggregated")
	assert.NotContains(t, got, "lookup", "tool traffic is not prose")

	assert.Equal(t, got, DeterministicSummary(msgs), "same window, same summary")
}
