package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentmodels "github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/bus"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/comms/models"
	"github.com/botcrew/botcrew/internal/comms/repository"
	"github.com/botcrew/botcrew/internal/delivery"
)

type stubDirectory struct {
	agents map[string]*agentmodels.Agent
}

func (d *stubDirectory) GetByIDs(ctx context.Context, ids []string) ([]*agentmodels.Agent, error) {
	var out []*agentmodels.Agent
	for _, id := range ids {
		if a, ok := d.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

type hubFixture struct {
	hub      *Hub
	channels *ChannelService
	messages *MessageService
	queue    *delivery.MemoryQueue
	repo     *repository.MemoryRepository
}

func newHubFixture(t *testing.T, agents ...*agentmodels.Agent) *hubFixture {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	messages := NewMessageService(repo, log)
	channels := NewChannelService(repo, log)
	queue := delivery.NewMemoryQueue(nil, log)
	directory := &stubDirectory{agents: make(map[string]*agentmodels.Agent)}
	for _, a := range agents {
		directory.agents[a.ID] = a
	}

	return &hubFixture{
		hub:      NewHub(messages, channels, directory, bus.NewMemoryBus(log), queue, log),
		channels: channels,
		messages: messages,
		queue:    queue,
		repo:     repo,
	}
}

func jobsByKind(jobs []*delivery.Job, kind delivery.Kind) []*delivery.Job {
	var out []*delivery.Job
	for _, j := range jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

func TestHubMentionRoutingCollapsesNameVariants(t *testing.T) {
	f := newHubFixture(t,
		&agentmodels.Agent{ID: "ada", Name: "Ada"},
		&agentmodels.Agent{ID: "bob", Name: "Bob-Jr"},
		&agentmodels.Agent{ID: "carl", Name: "Carl"},
	)

	channel, err := f.channels.Create(context.Background(), CreateChannelInput{
		Name:            "crew",
		Type:            models.ChannelTypeShared,
		Creator:         "alice",
		InitialAgentIDs: []string{"ada", "bob", "carl"},
	})
	require.NoError(t, err)

	_, err = f.hub.SendChannelMessage(context.Background(), SendChannelMessageInput{
		ChannelID: channel.ID,
		Content:   "Hey @ada and @bob-jr and @bob_jr",
		Sender:    repository.Member{UserIdentifier: "alice"},
	})
	require.NoError(t, err)

	dms := jobsByKind(f.queue.Jobs(), delivery.KindDirectMessage)
	require.Len(t, dms, 2)
	notified := map[string]bool{}
	for _, j := range dms {
		notified[j.AgentID] = true
		assert.Equal(t, channel.ID, j.DM.ReplyChannelID)
		assert.Equal(t, models.SenderTypeUser, j.DM.SenderType)
		assert.Equal(t, "alice", j.DM.SenderID)
	}
	assert.True(t, notified["ada"])
	assert.True(t, notified["bob"])

	// The unmentioned agent gets an evaluation instead.
	evals := jobsByKind(f.queue.Jobs(), delivery.KindEvaluation)
	require.Len(t, evals, 1)
	assert.Equal(t, "carl", evals[0].AgentID)
	assert.Equal(t, channel.ID, evals[0].Evaluation.ChannelID)
	assert.Equal(t, "alice", evals[0].Evaluation.SenderUserIdentifier)
	assert.False(t, evals[0].Evaluation.IsDM)
}

func TestHubAgentSenderSkipsEvaluation(t *testing.T) {
	f := newHubFixture(t,
		&agentmodels.Agent{ID: "ada", Name: "Ada"},
		&agentmodels.Agent{ID: "bob", Name: "Bob"},
	)

	channel, err := f.channels.Create(context.Background(), CreateChannelInput{
		Name:            "crew",
		Type:            models.ChannelTypeShared,
		InitialAgentIDs: []string{"ada", "bob"},
	})
	require.NoError(t, err)

	_, err = f.hub.SendChannelMessage(context.Background(), SendChannelMessageInput{
		ChannelID: channel.ID,
		Content:   "status update, no humans here",
		Sender:    repository.Member{AgentID: "ada"},
	})
	require.NoError(t, err)

	assert.Empty(t, jobsByKind(f.queue.Jobs(), delivery.KindEvaluation))
}

func TestHubSendDirectMessageReusesDMChannel(t *testing.T) {
	f := newHubFixture(t, &agentmodels.Agent{ID: "ada", Name: "Ada"})
	alice := repository.Member{UserIdentifier: "alice"}

	first, err := f.hub.SendDirectMessage(context.Background(), "ada", "ping", alice)
	require.NoError(t, err)
	second, err := f.hub.SendDirectMessage(context.Background(), "ada", "pong", alice)
	require.NoError(t, err)
	assert.Equal(t, first.ChannelID, second.ChannelID)

	channel, err := f.channels.Get(context.Background(), first.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelTypeDM, channel.Type)

	dms := jobsByKind(f.queue.Jobs(), delivery.KindDirectMessage)
	require.Len(t, dms, 2)
	assert.Equal(t, "ada", dms[0].AgentID)
	assert.Equal(t, first.ChannelID, dms[0].DM.ReplyChannelID)
	assert.Equal(t, first.ID, dms[0].DM.MessageID)

	// Message persisted even though no worker consumed the job.
	page, err := f.messages.History(context.Background(), first.ChannelID, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, models.MessageTypeDM, page.Messages[0].Type)
}

func TestHubSystemMessageHasNoRouting(t *testing.T) {
	f := newHubFixture(t, &agentmodels.Agent{ID: "ada", Name: "Ada"})

	channel, err := f.channels.Create(context.Background(), CreateChannelInput{
		Name:            "crew",
		Type:            models.ChannelTypeShared,
		InitialAgentIDs: []string{"ada"},
	})
	require.NoError(t, err)

	msg, err := f.hub.SendSystemMessage(context.Background(), channel.ID, "@ada joined the channel")
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeSystem, msg.Type)
	assert.Empty(t, msg.SenderAgentID)
	assert.Empty(t, msg.SenderUserID)
	assert.Empty(t, f.queue.Jobs())
}

func TestHubSendToMissingChannel(t *testing.T) {
	f := newHubFixture(t)

	_, err := f.hub.SendChannelMessage(context.Background(), SendChannelMessageInput{
		ChannelID: "nope",
		Content:   "hello",
		Sender:    repository.Member{UserIdentifier: "alice"},
	})
	assert.True(t, apperr.IsNotFound(err))
}

func TestReadCursorUnreadEnumeration(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	channel, err := f.channels.Create(ctx, CreateChannelInput{Name: "c2", Type: models.ChannelTypeShared, InitialAgentIDs: []string{"x"}})
	require.NoError(t, err)

	var ids []string
	for i := 1; i <= 5; i++ {
		msg, err := f.messages.Create(ctx, CreateMessageInput{
			ChannelID:    channel.ID,
			Content:      fmt.Sprintf("m%d", i),
			Type:         models.MessageTypeChat,
			SenderUserID: "alice",
		})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
		time.Sleep(time.Millisecond)
	}

	agentX := repository.Member{AgentID: "x"}
	count, err := f.messages.UnreadCount(ctx, channel.ID, agentX)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	_, err = f.messages.UpdateReadCursor(ctx, channel.ID, ids[2], agentX)
	require.NoError(t, err)

	count, err = f.messages.UnreadCount(ctx, channel.ID, agentX)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err := f.messages.UnreadMessages(ctx, channel.ID, agentX)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "m4", unread[0].Content)
	assert.Equal(t, "m5", unread[1].Content)

	// Pointing the cursor at an older message keeps the newer position.
	cursor, err := f.messages.UpdateReadCursor(ctx, channel.ID, ids[0], agentX)
	require.NoError(t, err)
	assert.Equal(t, ids[2], cursor.LastReadMessageID)
}

func TestHistoryPagination(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	channel, err := f.channels.Create(ctx, CreateChannelInput{Name: "c3", Type: models.ChannelTypeShared, Creator: "alice"})
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 55; i++ {
		require.NoError(t, f.repo.CreateMessage(ctx, &models.Message{
			ID:           fmt.Sprintf("msg-%03d", i),
			ChannelID:    channel.ID,
			SenderUserID: "alice",
			Content:      fmt.Sprintf("hello %d", i),
			Type:         models.MessageTypeChat,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	var collected []*models.Message
	page, err := f.messages.History(ctx, channel.ID, 20, "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 20)
	assert.True(t, page.HasNext)
	assert.Equal(t, "hello 54", page.Messages[0].Content)
	collected = append(collected, page.Messages...)

	page, err = f.messages.History(ctx, channel.ID, 20, page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 20)
	assert.True(t, page.HasNext)
	collected = append(collected, page.Messages...)

	page, err = f.messages.History(ctx, channel.ID, 20, page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 15)
	assert.False(t, page.HasNext)
	assert.Empty(t, page.NextCursor)
	collected = append(collected, page.Messages...)

	seen := make(map[string]bool, len(collected))
	for _, m := range collected {
		seen[m.ID] = true
	}
	assert.Len(t, seen, 55)
}

func TestHistoryPageSizeBounds(t *testing.T) {
	f := newHubFixture(t)

	_, err := f.messages.History(context.Background(), "ch", 201, "")
	assert.True(t, apperr.IsValidation(err))
	_, err = f.messages.History(context.Background(), "ch", -1, "")
	assert.True(t, apperr.IsValidation(err))
}

func TestMessageSenderVariantValidation(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	_, err := f.messages.Create(ctx, CreateMessageInput{
		ChannelID:     "ch",
		Content:       "x",
		Type:          models.MessageTypeChat,
		SenderAgentID: "a",
		SenderUserID:  "u",
	})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.messages.Create(ctx, CreateMessageInput{
		ChannelID: "ch",
		Content:   "x",
		Type:      models.MessageTypeChat,
	})
	assert.True(t, apperr.IsValidation(err))
}
