package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/lbessard/canal/internal/store"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	nickname   TEXT NOT NULL,
	joined_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (channel_id, user_id),
	UNIQUE (channel_id, nickname),
	FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	channel_id   TEXT NOT NULL,
	sender_id    TEXT NOT NULL,
	sender_label TEXT NOT NULL,
	recipient_id TEXT,
	text         TEXT NOT NULL,
	private      BOOLEAN NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply an alternative schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// mapWriteErr converts sqlite constraint violations to store.ErrConflict so
// callers can branch without depending on driver error strings.
func mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ==== UserStore implementation ====

// CreateUser persists a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	query := `
		INSERT INTO users (id, name)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Name); err != nil {
		return mapWriteErr("insert user", err)
	}

	created, err := s.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	user.CreatedAt = created.CreatedAt
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByName retrieves a user by display name.
func (s *SQLiteStore) GetUserByName(ctx context.Context, name string) (*store.User, error) {
	query := `
		SELECT id, name, created_at
		FROM users
		WHERE name = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, name).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// DeleteUser removes a user record.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ==== ChannelStore implementation ====

// CreateChannel persists a new channel.
func (s *SQLiteStore) CreateChannel(ctx context.Context, channel *store.Channel) error {
	query := `
		INSERT INTO channels (id, name)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, channel.ID, channel.Name); err != nil {
		return mapWriteErr("insert channel", err)
	}

	created, err := s.GetChannelByID(ctx, channel.ID)
	if err != nil {
		return err
	}
	channel.CreatedAt = created.CreatedAt
	return nil
}

// GetChannelByID retrieves a channel by ID.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id string) (*store.Channel, error) {
	query := `
		SELECT id, name, created_at
		FROM channels
		WHERE id = ?
	`
	var channel store.Channel
	err := s.db.QueryRowContext(ctx, query, id).Scan(&channel.ID, &channel.Name, &channel.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}

	return &channel, nil
}

// GetChannelByName retrieves a channel by name.
func (s *SQLiteStore) GetChannelByName(ctx context.Context, name string) (*store.Channel, error) {
	query := `
		SELECT id, name, created_at
		FROM channels
		WHERE name = ?
	`
	var channel store.Channel
	err := s.db.QueryRowContext(ctx, query, name).Scan(&channel.ID, &channel.Name, &channel.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}

	return &channel, nil
}

// RenameChannel updates a channel's name.
func (s *SQLiteStore) RenameChannel(ctx context.Context, id, newName string) error {
	query := `UPDATE channels SET name = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, newName, id)
	if err != nil {
		return mapWriteErr("rename channel", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("channel %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteChannel removes a channel and cascades its memberships.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Explicit cascade so the schema's ON DELETE CASCADE is not load-bearing
	// on the foreign_keys pragma being active. Message history goes with the
	// channel; its FK carries no cascade action.
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, id); err != nil {
		return fmt.Errorf("delete channel messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_members WHERE channel_id = ?`, id); err != nil {
		return fmt.Errorf("delete channel members: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("channel %s: %w", id, store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SearchChannels lists channels whose name contains the substring,
// case-insensitively. Empty substring matches all.
func (s *SQLiteStore) SearchChannels(ctx context.Context, substring string) ([]*store.Channel, error) {
	// SQLite LIKE is case-insensitive for ASCII by default. The substring is
	// a literal, so LIKE metacharacters in it must be escaped.
	query := `
		SELECT id, name, created_at
		FROM channels
		WHERE name LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, likeEscaper.Replace(substring))
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// ListChannelsOfUser lists channels the user is currently a member of.
func (s *SQLiteStore) ListChannelsOfUser(ctx context.Context, userID string) ([]*store.Channel, error) {
	query := `
		SELECT c.id, c.name, c.created_at
		FROM channels c
		JOIN channel_members cm ON c.id = cm.channel_id
		WHERE cm.user_id = ?
		ORDER BY cm.joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query channels of user: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

func scanChannels(rows *sql.Rows) ([]*store.Channel, error) {
	var channels []*store.Channel
	for rows.Next() {
		var channel store.Channel
		if err := rows.Scan(&channel.ID, &channel.Name, &channel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, &channel)
	}
	return channels, rows.Err()
}

// ==== MembershipStore implementation ====

// AddMember inserts a membership row.
func (s *SQLiteStore) AddMember(ctx context.Context, m *store.Membership) error {
	query := `
		INSERT INTO channel_members (channel_id, user_id, nickname)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, m.ChannelID, m.UserID, m.Nickname); err != nil {
		return mapWriteErr("insert membership", err)
	}

	created, err := s.GetMembership(ctx, m.ChannelID, m.UserID)
	if err != nil {
		return err
	}
	m.JoinedAt = created.JoinedAt
	return nil
}

// UpdateNickname changes an existing member's nickname in place.
func (s *SQLiteStore) UpdateNickname(ctx context.Context, channelID, userID, nickname string) error {
	query := `
		UPDATE channel_members
		SET nickname = ?
		WHERE channel_id = ? AND user_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, nickname, channelID, userID)
	if err != nil {
		return mapWriteErr("update nickname", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("membership %s/%s: %w", channelID, userID, store.ErrNotFound)
	}
	return nil
}

// RemoveMember deletes a membership row.
func (s *SQLiteStore) RemoveMember(ctx context.Context, channelID, userID string) error {
	query := `
		DELETE FROM channel_members
		WHERE channel_id = ? AND user_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, channelID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("membership %s/%s: %w", channelID, userID, store.ErrNotFound)
	}
	return nil
}

// GetMembership retrieves the membership of a user in a channel.
func (s *SQLiteStore) GetMembership(ctx context.Context, channelID, userID string) (*store.Membership, error) {
	query := `
		SELECT channel_id, user_id, nickname, joined_at
		FROM channel_members
		WHERE channel_id = ? AND user_id = ?
	`
	var m store.Membership
	err := s.db.QueryRowContext(ctx, query, channelID, userID).Scan(&m.ChannelID, &m.UserID, &m.Nickname, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership %s/%s: %w", channelID, userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}

	return &m, nil
}

// GetMembershipByNickname retrieves the membership holding a nickname in a channel.
func (s *SQLiteStore) GetMembershipByNickname(ctx context.Context, channelID, nickname string) (*store.Membership, error) {
	query := `
		SELECT channel_id, user_id, nickname, joined_at
		FROM channel_members
		WHERE channel_id = ? AND nickname = ?
	`
	var m store.Membership
	err := s.db.QueryRowContext(ctx, query, channelID, nickname).Scan(&m.ChannelID, &m.UserID, &m.Nickname, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("nickname %q in channel %s: %w", nickname, channelID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query membership by nickname: %w", err)
	}

	return &m, nil
}

// ListMembers lists all memberships of a channel.
func (s *SQLiteStore) ListMembers(ctx context.Context, channelID string) ([]*store.Membership, error) {
	query := `
		SELECT channel_id, user_id, nickname, joined_at
		FROM channel_members
		WHERE channel_id = ?
		ORDER BY joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*store.Membership
	for rows.Next() {
		var m store.Membership
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Nickname, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, &m)
	}

	return members, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, sender_id, sender_label, recipient_id, text, private, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ChannelID,
		msg.SenderID,
		msg.SenderLabel,
		msg.RecipientID,
		msg.Text,
		msg.Private,
		msg.CreatedAt,
	)
	if err != nil {
		return mapWriteErr("insert message", err)
	}
	return nil
}

// ListChannelMessages retrieves channel broadcasts plus the user's own
// private messages in the channel, in chronological order.
func (s *SQLiteStore) ListChannelMessages(ctx context.Context, channelID, userID string) ([]*store.Message, error) {
	query := `
		SELECT id, channel_id, sender_id, sender_label, recipient_id, text, private, created_at
		FROM messages
		WHERE channel_id = ?
		  AND (private = 0 OR sender_id = ? OR recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var recipientID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.SenderLabel, &recipientID, &msg.Text, &msg.Private, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if recipientID.Valid {
			msg.RecipientID = &recipientID.String
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
