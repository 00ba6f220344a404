package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/dkeye/owndc/internal/domain"
)

const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	avatar TEXT DEFAULT 'default-avatar.png',
	status TEXT DEFAULT 'offline',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS friends (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	friend_id TEXT NOT NULL,
	status TEXT DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'blocked')),
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (friend_id) REFERENCES users(id) ON DELETE CASCADE,
	UNIQUE(user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS channels (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT DEFAULT 'text' CHECK (type IN ('text', 'voice')),
	owner_id TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS channel_members (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	UNIQUE(channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	avatar TEXT DEFAULT 'default-group.png',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS group_members (
	id TEXT PRIMARY KEY,
	group_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role TEXT DEFAULT 'member' CHECK (role IN ('owner', 'admin', 'member')),
	joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	UNIQUE(group_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	channel_id TEXT,
	sender_id TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
	FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS direct_messages (
	id TEXT PRIMARY KEY,
	sender_id TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	read_at DATETIME,
	FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (receiver_id) REFERENCES users(id) ON DELETE CASCADE
);
`

// SQLStore implements Store on database/sql with SQLite placeholders.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info().Str("module", "storage.sqlite").Str("path", path).Msg("database initialized")
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an already opened database without touching the schema.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports an insert that references a missing row.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func deleted(res sql.Result) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Users

func (s *SQLStore) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("user is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, avatar, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(u.ID), u.Username, u.Email, u.PasswordHash, u.Avatar, string(u.Status), u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, password_hash, avatar, status, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u      domain.User
		avatar sql.NullString
		status sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &avatar, &status, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Avatar = avatar.String
	u.Status = domain.Status(status.String)
	if u.Status == "" {
		u.Status = domain.StatusOffline
	}
	return &u, nil
}

func (s *SQLStore) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = ?`, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return s.getUser(ctx, "id", string(id))
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLStore) SetUserStatus(ctx context.Context, id domain.UserID, status domain.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("set user status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Friends

func (s *SQLStore) GetAcceptedFriends(ctx context.Context, id domain.UserID) ([]domain.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.avatar, u.status
		 FROM friends f
		 JOIN users u ON (f.friend_id = u.id AND f.user_id = ?) OR (f.user_id = u.id AND f.friend_id = ?)
		 WHERE (f.user_id = ? OR f.friend_id = ?) AND f.status = 'accepted'`,
		string(id), string(id), string(id), string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("get accepted friends: %w", err)
	}
	defer rows.Close()

	out := []domain.Profile{}
	for rows.Next() {
		var (
			p      domain.Profile
			avatar sql.NullString
			status sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Username, &avatar, &status); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		if p.ID == id {
			continue
		}
		p.Avatar = avatar.String
		p.Status = domain.Status(status.String)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get accepted friends: %w", err)
	}
	return out, nil
}

func (s *SQLStore) listFriendEntries(ctx context.Context, query string, args ...any) ([]domain.FriendEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.FriendEntry{}
	for rows.Next() {
		var (
			e      domain.FriendEntry
			avatar sql.NullString
			status sql.NullString
		)
		if err := rows.Scan(&e.FriendshipID, &e.Status, &e.ID, &e.Username, &avatar, &status); err != nil {
			return nil, err
		}
		e.Avatar = avatar.String
		e.UserStatus = domain.Status(status.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListFriendships(ctx context.Context, id domain.UserID) (*domain.FriendList, error) {
	uid := string(id)
	friends, err := s.listFriendEntries(ctx,
		`SELECT f.id, f.status, u.id, u.username, u.avatar, u.status
		 FROM friends f
		 JOIN users u ON (f.friend_id = u.id AND f.user_id = ?) OR (f.user_id = u.id AND f.friend_id = ?)
		 WHERE (f.user_id = ? OR f.friend_id = ?) AND f.status = 'accepted'`,
		uid, uid, uid, uid)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	pending, err := s.listFriendEntries(ctx,
		`SELECT f.id, f.status, u.id, u.username, u.avatar, u.status
		 FROM friends f JOIN users u ON f.user_id = u.id
		 WHERE f.friend_id = ? AND f.status = 'pending'`, uid)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	sent, err := s.listFriendEntries(ctx,
		`SELECT f.id, f.status, u.id, u.username, u.avatar, u.status
		 FROM friends f JOIN users u ON f.friend_id = u.id
		 WHERE f.user_id = ? AND f.status = 'pending'`, uid)
	if err != nil {
		return nil, fmt.Errorf("list sent requests: %w", err)
	}

	filtered := friends[:0]
	for _, f := range friends {
		if f.ID != id {
			filtered = append(filtered, f)
		}
	}
	return &domain.FriendList{Friends: filtered, PendingRequests: pending, SentRequests: sent}, nil
}

const friendshipColumns = `id, user_id, friend_id, status, created_at`

func scanFriendship(row interface{ Scan(...any) error }) (*domain.Friendship, error) {
	var f domain.Friendship
	if err := row.Scan(&f.ID, &f.UserID, &f.FriendID, &f.Status, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLStore) GetFriendshipBetween(ctx context.Context, a, b domain.UserID) (*domain.Friendship, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+friendshipColumns+` FROM friends
		 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		string(a), string(b), string(b), string(a))
	f, err := scanFriendship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	return f, nil
}

func (s *SQLStore) CreateFriendRequest(ctx context.Context, f *domain.Friendship) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	f.Status = domain.FriendshipPending
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friends (id, user_id, friend_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, string(f.UserID), string(f.FriendID), string(f.Status), f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create friend request: %w", err)
	}
	return nil
}

func (s *SQLStore) AcceptFriendRequest(ctx context.Context, friendshipID string, receiver domain.UserID) (*domain.Friendship, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE friends SET status = 'accepted' WHERE id = ? AND friend_id = ? AND status = 'pending'`,
		friendshipID, string(receiver))
	if err != nil {
		return nil, fmt.Errorf("accept friend request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+friendshipColumns+` FROM friends WHERE id = ?`, friendshipID)
	f, err := scanFriendship(row)
	if err != nil {
		return nil, fmt.Errorf("accept friend request: %w", err)
	}
	return f, nil
}

func (s *SQLStore) DeclineFriendRequest(ctx context.Context, friendshipID string, receiver domain.UserID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM friends WHERE id = ? AND friend_id = ? AND status = 'pending'`,
		friendshipID, string(receiver))
	if err != nil {
		return fmt.Errorf("decline friend request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) RemoveFriend(ctx context.Context, friendshipID string, user domain.UserID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM friends WHERE id = ? AND (user_id = ? OR friend_id = ?)`,
		friendshipID, string(user), string(user))
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Channels

func (s *SQLStore) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels (id, name, type, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(ch.ID), ch.Name, string(ch.Type), string(ch.OwnerID), ch.CreatedAt); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channel_members (id, channel_id, user_id) VALUES (?, ?, ?)`,
		uuid.NewString(), string(ch.ID), string(ch.OwnerID)); err != nil {
		return fmt.Errorf("add channel owner: %w", err)
	}
	return tx.Commit()
}

const channelColumns = `c.id, c.name, c.type, c.owner_id, c.created_at`

func (s *SQLStore) GetChannel(ctx context.Context, id domain.RoomID) (*domain.Channel, error) {
	var ch domain.Channel
	err := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels c WHERE c.id = ?`, string(id)).
		Scan(&ch.ID, &ch.Name, &ch.Type, &ch.OwnerID, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

func (s *SQLStore) ListChannelsForUser(ctx context.Context, user domain.UserID) ([]domain.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels c
		 JOIN channel_members m ON m.channel_id = c.id
		 WHERE m.user_id = ?
		 ORDER BY c.created_at`, string(user))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	out := []domain.Channel{}
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Type, &ch.OwnerID, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

func (s *SQLStore) AddChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_members (id, channel_id, user_id) VALUES (?, ?, ?)`,
		uuid.NewString(), string(channel), string(user))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("add channel member: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("add channel member: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`, string(channel), string(user))
	if err != nil {
		return fmt.Errorf("remove channel member: %w", err)
	}
	return deleted(res)
}

func (s *SQLStore) ListChannels(ctx context.Context) ([]domain.ChannelSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelColumns+`, COALESCE(u.username, ''), COUNT(m.user_id)
		 FROM channels c
		 LEFT JOIN users u ON c.owner_id = u.id
		 LEFT JOIN channel_members m ON m.channel_id = c.id
		 GROUP BY c.id
		 ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all channels: %w", err)
	}
	defer rows.Close()

	out := []domain.ChannelSummary{}
	for rows.Next() {
		var sum domain.ChannelSummary
		ch := &sum.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Type, &ch.OwnerID, &ch.CreatedAt, &sum.OwnerUsername, &sum.MemberCount); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list all channels: %w", err)
	}
	return out, nil
}

// DeleteChannel relies on ON DELETE CASCADE for members and messages.
func (s *SQLStore) DeleteChannel(ctx context.Context, id domain.RoomID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return deleted(res)
}

func (s *SQLStore) IsChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		string(channel), string(user)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is channel member: %w", err)
	}
	return n > 0, nil
}

// Groups

func (s *SQLStore) CreateGroup(ctx context.Context, g *domain.Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, owner_id, avatar, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(g.ID), g.Name, string(g.OwnerID), g.Avatar, g.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create group: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (id, group_id, user_id, role) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), string(g.ID), string(g.OwnerID), string(domain.GroupOwner)); err != nil {
		return fmt.Errorf("add group owner: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) GetGroup(ctx context.Context, id domain.GroupID) (*domain.Group, error) {
	var g domain.Group
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, avatar, created_at FROM groups WHERE id = ?`, string(id)).
		Scan(&g.ID, &g.Name, &g.OwnerID, &avatar, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	g.Avatar = avatar.String
	return &g, nil
}

func (s *SQLStore) ListGroupsForUser(ctx context.Context, user domain.UserID) ([]domain.GroupSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.owner_id, g.avatar, g.created_at, COALESCE(u.username, ''), COUNT(gm.user_id)
		 FROM groups g
		 LEFT JOIN users u ON g.owner_id = u.id
		 LEFT JOIN group_members gm ON gm.group_id = g.id
		 WHERE g.id IN (SELECT group_id FROM group_members WHERE user_id = ?)
		 GROUP BY g.id
		 ORDER BY g.created_at DESC`, string(user))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	out := []domain.GroupSummary{}
	for rows.Next() {
		var sum domain.GroupSummary
		var avatar sql.NullString
		g := &sum.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &avatar, &g.CreatedAt, &sum.OwnerUsername, &sum.MemberCount); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.Avatar = avatar.String
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return out, nil
}

func (s *SQLStore) AddGroupMember(ctx context.Context, group domain.GroupID, user domain.UserID, role domain.GroupRole) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (id, group_id, user_id, role) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), string(group), string(user), string(role))
	switch {
	case isUniqueViolation(err):
		return ErrAlreadyExists
	case isForeignKeyViolation(err):
		return fmt.Errorf("add group member: %w", ErrNotFound)
	case err != nil:
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *SQLStore) IsGroupMember(ctx context.Context, group domain.GroupID, user domain.UserID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?`,
		string(group), string(user)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is group member: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) DeleteGroup(ctx context.Context, id domain.GroupID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return deleted(res)
}

// Messages

func (s *SQLStore) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, sender_id, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		m.ID, string(m.ChannelID), string(m.SenderID), m.Content, m.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if sender, err := s.GetUserByID(ctx, m.SenderID); err == nil {
		m.SenderUsername = sender.Username
		m.SenderAvatar = sender.Avatar
	}
	return m, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, channel domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.channel_id, m.sender_id, m.content, m.timestamp, u.username, u.avatar
		 FROM messages m JOIN users u ON m.sender_id = u.id
		 WHERE m.channel_id = ?
		 ORDER BY m.timestamp DESC LIMIT ?`, string(channel), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		var (
			m      domain.Message
			avatar sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Content, &m.Timestamp, &m.SenderUsername, &avatar); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderAvatar = avatar.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *SQLStore) InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) (*domain.DirectMessage, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO direct_messages (id, sender_id, receiver_id, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		m.ID, string(m.SenderID), string(m.ReceiverID), m.Content, m.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert direct message: %w", err)
	}
	if sender, err := s.GetUserByID(ctx, m.SenderID); err == nil {
		m.SenderUsername = sender.Username
		m.SenderAvatar = sender.Avatar
	}
	return m, nil
}

func (s *SQLStore) ListDirectMessages(ctx context.Context, a, b domain.UserID, limit int) ([]domain.DirectMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.sender_id, d.receiver_id, d.content, d.timestamp, u.username, u.avatar
		 FROM direct_messages d JOIN users u ON d.sender_id = u.id
		 WHERE (d.sender_id = ? AND d.receiver_id = ?) OR (d.sender_id = ? AND d.receiver_id = ?)
		 ORDER BY d.timestamp DESC LIMIT ?`,
		string(a), string(b), string(b), string(a), limit)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	defer rows.Close()

	out := []domain.DirectMessage{}
	for rows.Next() {
		var (
			m      domain.DirectMessage
			avatar sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp, &m.SenderUsername, &avatar); err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		m.SenderAvatar = avatar.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}
