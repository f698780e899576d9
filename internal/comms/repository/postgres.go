package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/database"
	"github.com/botcrew/botcrew/internal/comms/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a PostgreSQL communication repository.
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the communication tables if they do not exist.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS channels (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			created_by TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS channel_members (
			id UUID PRIMARY KEY,
			channel_id UUID NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			agent_id UUID,
			user_identifier TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			CHECK ((agent_id IS NULL) <> (user_identifier IS NULL))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_channel_members_agent
			ON channel_members(channel_id, agent_id) WHERE agent_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS uq_channel_members_user
			ON channel_members(channel_id, user_identifier) WHERE user_identifier IS NOT NULL;
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			channel_id UUID NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			sender_agent_id UUID,
			sender_user_id TEXT,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_channel_created
			ON messages(channel_id, created_at, id);
		CREATE TABLE IF NOT EXISTS read_cursors (
			id UUID PRIMARY KEY,
			channel_id UUID NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			agent_id UUID,
			user_identifier TEXT,
			last_read_message_id UUID NOT NULL,
			last_read_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CHECK ((agent_id IS NULL) <> (user_identifier IS NULL))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_read_cursors_agent
			ON read_cursors(channel_id, agent_id) WHERE agent_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS uq_read_cursors_user
			ON read_cursors(channel_id, user_identifier) WHERE user_identifier IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("failed to init communication schema: %w", err)
	}
	return nil
}

const channelColumns = `id, name, description, type, COALESCE(created_by, ''), created_at, updated_at`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var ch models.Channel
	err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.Type, &ch.CreatedBy, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateChannel inserts the channel and its initial members atomically.
func (r *PostgresRepository) CreateChannel(ctx context.Context, channel *models.Channel, members []*models.ChannelMember) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO channels (id, name, description, type, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
			channel.ID, channel.Name, channel.Description, channel.Type,
			channel.CreatedBy, channel.CreatedAt, channel.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create channel: %w", err)
		}
		for _, m := range members {
			if err := insertMember(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertMember(ctx context.Context, tx pgx.Tx, m *models.ChannelMember) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO channel_members (id, channel_id, agent_id, user_identifier, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, ''), $5)`,
		m.ID, m.ChannelID, m.AgentID, m.UserIdentifier, m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return apperr.Conflict("member already in channel %s", m.ChannelID)
	}
	if err != nil {
		return fmt.Errorf("failed to add channel member: %w", err)
	}
	return nil
}

// GetChannel fetches a channel by id.
func (r *PostgresRepository) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := scanChannel(r.db.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("channel %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

// UpdateChannel writes name and description.
func (r *PostgresRepository) UpdateChannel(ctx context.Context, channel *models.Channel) error {
	channel.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE channels SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		channel.ID, channel.Name, channel.Description, channel.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("channel %s not found", channel.ID)
	}
	return nil
}

// DeleteChannel removes the channel; members, messages, and cursors
// cascade.
func (r *PostgresRepository) DeleteChannel(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("channel %s not found", id)
	}
	return nil
}

// ListChannels returns channels, optionally those a member belongs to.
func (r *PostgresRepository) ListChannels(ctx context.Context, filter *Member) ([]*models.Channel, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case filter == nil:
		rows, err = r.db.Query(ctx,
			`SELECT `+channelColumns+` FROM channels ORDER BY created_at, id`)
	case filter.IsAgent():
		rows, err = r.db.Query(ctx, `
			SELECT `+channelColumns+` FROM channels
			WHERE id IN (SELECT channel_id FROM channel_members WHERE agent_id = $1)
			ORDER BY created_at, id`, filter.AgentID)
	default:
		rows, err = r.db.Query(ctx, `
			SELECT `+channelColumns+` FROM channels
			WHERE id IN (SELECT channel_id FROM channel_members WHERE user_identifier = $1)
			ORDER BY created_at, id`, filter.UserIdentifier)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// FindDMChannel intersects membership: the dm channel that has both
// the agent and the peer, and nobody else.
func (r *PostgresRepository) FindDMChannel(ctx context.Context, agentID string, peer Member) (*models.Channel, error) {
	peerCond := `EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_identifier = $2)`
	peerArg := peer.UserIdentifier
	if peer.IsAgent() {
		peerCond = `EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.agent_id = $2 AND m.agent_id <> $1)`
		peerArg = peer.AgentID
	}
	ch, err := scanChannel(r.db.QueryRow(ctx, `
		SELECT `+channelColumns+` FROM channels c
		WHERE c.type = 'dm'
		  AND EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.agent_id = $1)
		  AND `+peerCond+`
		  AND (SELECT COUNT(*) FROM channel_members m WHERE m.channel_id = c.id) = 2
		ORDER BY c.created_at
		LIMIT 1`, agentID, peerArg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no dm channel for agent %s", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find dm channel: %w", err)
	}
	return ch, nil
}

// AddMember inserts a membership row; duplicates conflict.
func (r *PostgresRepository) AddMember(ctx context.Context, member *models.ChannelMember) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return insertMember(ctx, tx, member)
	})
}

// RemoveMember deletes a membership row.
func (r *PostgresRepository) RemoveMember(ctx context.Context, channelID string, member Member) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if member.IsAgent() {
		tag, err = r.db.Exec(ctx,
			`DELETE FROM channel_members WHERE channel_id = $1 AND agent_id = $2`,
			channelID, member.AgentID)
	} else {
		tag, err = r.db.Exec(ctx,
			`DELETE FROM channel_members WHERE channel_id = $1 AND user_identifier = $2`,
			channelID, member.UserIdentifier)
	}
	if err != nil {
		return fmt.Errorf("failed to remove channel member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("member not in channel %s", channelID)
	}
	return nil
}

// ListMembers returns all members of a channel.
func (r *PostgresRepository) ListMembers(ctx context.Context, channelID string) ([]*models.ChannelMember, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, channel_id, COALESCE(agent_id::text, ''), COALESCE(user_identifier, ''), created_at
		FROM channel_members WHERE channel_id = $1 ORDER BY created_at, id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel members: %w", err)
	}
	defer rows.Close()

	var members []*models.ChannelMember
	for rows.Next() {
		var m models.ChannelMember
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AgentID, &m.UserIdentifier, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

// ChannelAgentIDs returns only the agent members of a channel.
func (r *PostgresRepository) ChannelAgentIDs(ctx context.Context, channelID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT agent_id FROM channel_members
		WHERE channel_id = $1 AND agent_id IS NOT NULL ORDER BY created_at`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateMessage inserts a message row.
func (r *PostgresRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	var metadata []byte
	if msg.Metadata != nil {
		var err error
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal message metadata: %w", err)
		}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (id, channel_id, sender_agent_id, sender_user_id, content, type, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, ''), $5, $6, $7, $8)`,
		msg.ID, msg.ChannelID, msg.SenderAgentID, msg.SenderUserID,
		msg.Content, msg.Type, metadata, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

const messageColumns = `id, channel_id, COALESCE(sender_agent_id::text, ''),
	COALESCE(sender_user_id, ''), content, type, metadata, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		m        models.Message
		metadata []byte
	)
	err := row.Scan(&m.ID, &m.ChannelID, &m.SenderAgentID, &m.SenderUserID,
		&m.Content, &m.Type, &metadata, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
		}
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]*models.Message, error) {
	defer rows.Close()
	var msgs []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage fetches a message by id.
func (r *PostgresRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("message %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// History returns messages newest-first, strictly older than the
// cursor boundary when one is set.
func (r *PostgresRepository) History(ctx context.Context, channelID string, opts HistoryOptions) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id = $1`
	args := []any{channelID}
	if !opts.BeforeTime.IsZero() {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, opts.BeforeTime, opts.BeforeID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read message history: %w", err)
	}
	return collectMessages(rows)
}

// MessagesAfter returns messages newer than after, oldest-first.
func (r *PostgresRepository) MessagesAfter(ctx context.Context, channelID string, after time.Time) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id = $1`
	args := []any{channelID}
	if !after.IsZero() {
		query += " AND created_at > $2"
		args = append(args, after)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read unread messages: %w", err)
	}
	return collectMessages(rows)
}

// CountAfter counts messages newer than after.
func (r *PostgresRepository) CountAfter(ctx context.Context, channelID string, after time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE channel_id = $1`
	args := []any{channelID}
	if !after.IsZero() {
		query += " AND created_at > $2"
		args = append(args, after)
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// GetReadCursor fetches a member's cursor in a channel.
func (r *PostgresRepository) GetReadCursor(ctx context.Context, channelID string, member Member) (*models.ReadCursor, error) {
	var row pgx.Row
	if member.IsAgent() {
		row = r.db.QueryRow(ctx, `
			SELECT id, channel_id, COALESCE(agent_id::text, ''), COALESCE(user_identifier, ''),
				last_read_message_id, last_read_at, updated_at
			FROM read_cursors WHERE channel_id = $1 AND agent_id = $2`, channelID, member.AgentID)
	} else {
		row = r.db.QueryRow(ctx, `
			SELECT id, channel_id, COALESCE(agent_id::text, ''), COALESCE(user_identifier, ''),
				last_read_message_id, last_read_at, updated_at
			FROM read_cursors WHERE channel_id = $1 AND user_identifier = $2`, channelID, member.UserIdentifier)
	}

	var c models.ReadCursor
	err := row.Scan(&c.ID, &c.ChannelID, &c.AgentID, &c.UserIdentifier,
		&c.LastReadMessageID, &c.LastReadAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no read cursor in channel %s", channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get read cursor: %w", err)
	}
	return &c, nil
}

// UpsertReadCursor writes the cursor, inserting or updating on the
// per-member uniqueness. A write pointing at an older position than
// the stored row is a no-op, so concurrent advances cannot regress the
// cursor regardless of arrival order.
func (r *PostgresRepository) UpsertReadCursor(ctx context.Context, cursor *models.ReadCursor) error {
	cursor.UpdatedAt = time.Now().UTC()
	var err error
	if cursor.AgentID != "" {
		_, err = r.db.Exec(ctx, `
			INSERT INTO read_cursors (id, channel_id, agent_id, last_read_message_id, last_read_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (channel_id, agent_id) WHERE agent_id IS NOT NULL
			DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id,
				last_read_at = EXCLUDED.last_read_at,
				updated_at = EXCLUDED.updated_at
			WHERE (read_cursors.last_read_at, read_cursors.last_read_message_id)
				< (EXCLUDED.last_read_at, EXCLUDED.last_read_message_id)`,
			cursor.ID, cursor.ChannelID, cursor.AgentID,
			cursor.LastReadMessageID, cursor.LastReadAt, cursor.UpdatedAt)
	} else {
		_, err = r.db.Exec(ctx, `
			INSERT INTO read_cursors (id, channel_id, user_identifier, last_read_message_id, last_read_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (channel_id, user_identifier) WHERE user_identifier IS NOT NULL
			DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id,
				last_read_at = EXCLUDED.last_read_at,
				updated_at = EXCLUDED.updated_at
			WHERE (read_cursors.last_read_at, read_cursors.last_read_message_id)
				< (EXCLUDED.last_read_at, EXCLUDED.last_read_message_id)`,
			cursor.ID, cursor.ChannelID, cursor.UserIdentifier,
			cursor.LastReadMessageID, cursor.LastReadAt, cursor.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert read cursor: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
