package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"
	"freecord/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type PostgresDB struct {
	pool *pgxpool.Pool
}

var _ Database = (*PostgresDB)(nil)

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Channel and conversation messages live in parallel tables.
type scopeTables struct {
	messages     string
	scopeColumn  string
	authorColumn string
	reactions    string
	reactionKey  string
	pinKey       string
	pinScope     string
	uploadPrefix string
}

var (
	channelTables = scopeTables{
		messages:     "messages",
		scopeColumn:  "channel_id",
		authorColumn: "user_id",
		reactions:    "reactions",
		reactionKey:  "message_id",
		pinKey:       "message_id",
		pinScope:     "channel_id",
		uploadPrefix: "/uploads/channels/",
	}
	conversationTables = scopeTables{
		messages:     "direct_messages",
		scopeColumn:  "conversation_id",
		authorColumn: "sender_id",
		reactions:    "dm_reactions",
		reactionKey:  "dm_message_id",
		pinKey:       "dm_message_id",
		pinScope:     "conversation_id",
		uploadPrefix: "/uploads/dms/",
	}
)

func tablesFor(scope models.Scope) scopeTables {
	if scope.IsConversation() {
		return conversationTables
	}
	return channelTables
}

func (t scopeTables) selectMessages() string {
	return fmt.Sprintf(`
		SELECT m.id, m.encrypted_content, m.%[2]s, u.username, u.display_name, u.avatar,
		       m.attachment, m.attachment_name, m.attachment_size, m.attachment_mime,
		       m.is_deleted, m.edited_at, m.created_at
		FROM %[1]s m
		JOIN users u ON u.id = m.%[2]s`, t.messages, t.authorColumn)
}

// Message Repository Implementation
func (db *PostgresDB) AppendMessage(ctx context.Context, scope models.Scope, authorID int64, ciphertext string, attachment *models.Attachment) (*models.Message, error) {
	t := tablesFor(scope)
	query := fmt.Sprintf(`
		WITH m AS (
			INSERT INTO %[1]s (encrypted_content, %[2]s, %[3]s, attachment, attachment_name, attachment_size, attachment_mime, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING id, created_at, %[3]s AS author_id
		)
		SELECT m.id, m.created_at, u.username, u.display_name, u.avatar
		FROM m JOIN users u ON u.id = m.author_id`, t.messages, t.scopeColumn, t.authorColumn)

	var file, name, mime *string
	var size *int64
	if attachment != nil {
		file, name, size, mime = &attachment.URL, &attachment.Name, &attachment.Size, &attachment.MIME
	}

	msg := &models.Message{
		Scope:      scope,
		Ciphertext: ciphertext,
		Author:     models.Author{ID: authorID},
		Reactions:  []models.Reaction{},
	}
	var avatar *string
	err := db.pool.QueryRow(ctx, query, ciphertext, scope.ID, authorID, file, name, size, mime).Scan(
		&msg.ID, &msg.CreatedAt, &msg.Author.Username, &msg.Author.DisplayName, &avatar,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	msg.Author.AvatarURL = avatarURL(avatar)
	if attachment != nil {
		stored := *attachment
		stored.URL = t.uploadPrefix + attachment.URL
		msg.Attachment = &stored
	}

	return msg, nil
}

func (db *PostgresDB) FetchMessages(ctx context.Context, scope models.Scope, limit int) ([]*models.Message, error) {
	t := tablesFor(scope)
	query := t.selectMessages() + fmt.Sprintf(`
		WHERE m.%s = $1
		ORDER BY m.id DESC
		LIMIT $2`, t.scopeColumn)

	messages, err := db.queryMessages(ctx, scope, query, scope.ID, limit)
	if err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) FetchRecentMessages(ctx context.Context, scope models.Scope, limit int) ([]*models.Message, error) {
	t := tablesFor(scope)
	query := t.selectMessages() + fmt.Sprintf(`
		WHERE m.%s = $1 AND m.is_deleted = FALSE
		ORDER BY m.id DESC
		LIMIT $2`, t.scopeColumn)

	return db.queryMessages(ctx, scope, query, scope.ID, limit)
}

func (db *PostgresDB) GetMessage(ctx context.Context, scope models.Scope, messageID int64) (*models.Message, error) {
	t := tablesFor(scope)
	query := t.selectMessages() + fmt.Sprintf(`
		WHERE m.%s = $1 AND m.id = $2`, t.scopeColumn)

	messages, err := db.queryMessages(ctx, scope, query, scope.ID, messageID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("message %d in %s: %w", messageID, scope, chaterrors.ErrNotFound)
	}
	return messages[0], nil
}

func (db *PostgresDB) MarkEdited(ctx context.Context, scope models.Scope, messageID int64, ciphertext string, editedAt time.Time) error {
	t := tablesFor(scope)
	query := fmt.Sprintf(`UPDATE %s SET encrypted_content = $1, edited_at = $2 WHERE id = $3 AND %s = $4`, t.messages, t.scopeColumn)

	tag, err := db.pool.Exec(ctx, query, ciphertext, editedAt, messageID, scope.ID)
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %d in %s: %w", messageID, scope, chaterrors.ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) MarkDeleted(ctx context.Context, scope models.Scope, messageID int64, ciphertext string) error {
	t := tablesFor(scope)
	query := fmt.Sprintf(`UPDATE %s SET encrypted_content = $1, is_deleted = TRUE WHERE id = $2 AND %s = $3 AND is_deleted = FALSE`, t.messages, t.scopeColumn)

	tag, err := db.pool.Exec(ctx, query, ciphertext, messageID, scope.ID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %d in %s: %w", messageID, scope, chaterrors.ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) queryMessages(ctx context.Context, scope models.Scope, query string, args ...any) ([]*models.Message, error) {
	t := tablesFor(scope)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{Scope: scope}
		var avatar, file, name, mime *string
		var size *int64
		if err := rows.Scan(
			&msg.ID, &msg.Ciphertext, &msg.Author.ID, &msg.Author.Username, &msg.Author.DisplayName, &avatar,
			&file, &name, &size, &mime,
			&msg.IsDeleted, &msg.EditedAt, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		msg.Author.AvatarURL = avatarURL(avatar)
		if file != nil {
			msg.Attachment = &models.Attachment{URL: t.uploadPrefix + *file, Name: deref(name), Size: derefInt(size), MIME: deref(mime)}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.attachReactions(ctx, t, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (db *PostgresDB) attachReactions(ctx context.Context, t scopeTables, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, len(messages))
	byID := make(map[int64]*models.Message, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
		byID[msg.ID] = msg
		msg.Reactions = []models.Reaction{}
	}

	query := fmt.Sprintf(`
		SELECT r.%[2]s, r.emoji, u.username
		FROM %[1]s r
		JOIN users u ON u.id = r.user_id
		WHERE r.%[2]s = ANY($1)
		ORDER BY r.%[2]s, r.id`, t.reactions, t.reactionKey)

	rows, err := db.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID int64
		var emoji, username string
		if err := rows.Scan(&messageID, &emoji, &username); err != nil {
			return err
		}
		msg := byID[messageID]
		msg.Reactions = addReaction(msg.Reactions, emoji, username)
	}
	return rows.Err()
}

// addReaction keeps emojis in first-seen order.
func addReaction(reactions []models.Reaction, emoji, username string) []models.Reaction {
	for i := range reactions {
		if reactions[i].Emoji == emoji {
			reactions[i].Count++
			reactions[i].Users = append(reactions[i].Users, username)
			return reactions
		}
	}
	return append(reactions, models.Reaction{Emoji: emoji, Count: 1, Users: []string{username}})
}

// Reaction Repository Implementation
func (db *PostgresDB) ToggleReaction(ctx context.Context, scope models.Scope, messageID, userID int64, emoji string) (bool, int, error) {
	t := tablesFor(scope)

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(ctx)

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND %s = $2 AND emoji = $3`, t.reactions, t.reactionKey)
	tag, err := tx.Exec(ctx, deleteQuery, userID, messageID, emoji)
	if err != nil {
		return false, 0, fmt.Errorf("failed to remove reaction: %w", err)
	}

	added := tag.RowsAffected() == 0
	if added {
		insertQuery := fmt.Sprintf(`
			INSERT INTO %s (user_id, %s, emoji, created_at) VALUES ($1, $2, $3, NOW())
			ON CONFLICT DO NOTHING`, t.reactions, t.reactionKey)
		if _, err := tx.Exec(ctx, insertQuery, userID, messageID, emoji); err != nil {
			return false, 0, fmt.Errorf("failed to add reaction: %w", err)
		}
	}

	var count int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND emoji = $2`, t.reactions, t.reactionKey)
	if err := tx.QueryRow(ctx, countQuery, messageID, emoji).Scan(&count); err != nil {
		return false, 0, err
	}

	return added, count, tx.Commit(ctx)
}

// Pin Repository Implementation

// PinMessage pins messageID unless the scope already holds limit pins. The
// count and the insert run in one transaction under a per-scope advisory
// lock; the unique indexes on pinned_messages reject a second pin of the
// same message.
func (db *PostgresDB) PinMessage(ctx context.Context, scope models.Scope, messageID, pinnedBy int64, limit int) error {
	t := tablesFor(scope)

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, scope.KeyID()); err != nil {
		return fmt.Errorf("failed to lock pins: %w", err)
	}

	var count int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM pinned_messages WHERE %s = $1`, t.pinScope)
	if err := tx.QueryRow(ctx, countQuery, scope.ID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count pins: %w", err)
	}
	if count >= limit {
		return fmt.Errorf("maximum %d pinned messages: %w", limit, chaterrors.ErrInvalidInput)
	}

	query := fmt.Sprintf(`INSERT INTO pinned_messages (%s, %s, pinned_by, pinned_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT DO NOTHING`, t.pinKey, t.pinScope)
	tag, err := tx.Exec(ctx, query, messageID, scope.ID, pinnedBy)
	if err != nil {
		return fmt.Errorf("failed to pin message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %d already pinned: %w", messageID, chaterrors.ErrConflict)
	}

	return tx.Commit(ctx)
}

func (db *PostgresDB) UnpinMessage(ctx context.Context, scope models.Scope, messageID int64) error {
	t := tablesFor(scope)
	query := fmt.Sprintf(`DELETE FROM pinned_messages WHERE %s = $1 AND %s = $2`, t.pinKey, t.pinScope)

	tag, err := db.pool.Exec(ctx, query, messageID, scope.ID)
	if err != nil {
		return fmt.Errorf("failed to unpin message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %d not pinned: %w", messageID, chaterrors.ErrNotFound)
	}
	return nil
}

// Conversation Repository Implementation
func (db *PostgresDB) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	query := `SELECT id, user1_id, user2_id, created_at FROM conversations WHERE id = $1`

	convo := &models.Conversation{}
	err := db.pool.QueryRow(ctx, query, id).Scan(&convo.ID, &convo.User1ID, &convo.User2ID, &convo.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, chaterrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return convo, nil
}

// User Repository Implementation
func (db *PostgresDB) UpdateUserStatus(ctx context.Context, userID int64, status string, at time.Time) error {
	query := `UPDATE users SET status = $1, last_activity = $2 WHERE id = $3`
	_, err := db.pool.Exec(ctx, query, status, at, userID)
	return err
}

func avatarURL(avatar *string) *string {
	if avatar == nil || *avatar == "" {
		return nil
	}
	url := "/avatars/" + *avatar
	return &url
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
