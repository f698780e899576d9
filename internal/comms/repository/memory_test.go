package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcrew/botcrew/internal/comms/models"
)

func userCursor(channelID, user, messageID string, at time.Time) *models.ReadCursor {
	return &models.ReadCursor{
		ID:                "cur-1",
		ChannelID:         channelID,
		UserIdentifier:    user,
		LastReadMessageID: messageID,
		LastReadAt:        at,
	}
}

func TestUpsertReadCursorRefusesOlderPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	member := Member{UserIdentifier: "alice"}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertReadCursor(ctx, userCursor("ch-1", "alice", "msg-b", base.Add(time.Minute))))

	// A late write carrying an older position must not win, whatever
	// order concurrent advances land in.
	require.NoError(t, repo.UpsertReadCursor(ctx, userCursor("ch-1", "alice", "msg-a", base)))

	got, err := repo.GetReadCursor(ctx, "ch-1", member)
	require.NoError(t, err)
	assert.Equal(t, "msg-b", got.LastReadMessageID)
	assert.True(t, got.LastReadAt.Equal(base.Add(time.Minute)))
}

func TestUpsertReadCursorSameInstantTieBreaksOnMessageID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	member := Member{UserIdentifier: "alice"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertReadCursor(ctx, userCursor("ch-1", "alice", "msg-b", at)))
	require.NoError(t, repo.UpsertReadCursor(ctx, userCursor("ch-1", "alice", "msg-a", at)))

	got, err := repo.GetReadCursor(ctx, "ch-1", member)
	require.NoError(t, err)
	assert.Equal(t, "msg-b", got.LastReadMessageID)

	require.NoError(t, repo.UpsertReadCursor(ctx, userCursor("ch-1", "alice", "msg-c", at)))
	got, err = repo.GetReadCursor(ctx, "ch-1", member)
	require.NoError(t, err)
	assert.Equal(t, "msg-c", got.LastReadMessageID)
}
