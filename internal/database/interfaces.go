package database

import (
	"context"
	"time"

	"freecord/internal/models"
)

type MessageRepository interface {
	// AppendMessage stores a message and returns it with the server-assigned
	// id, timestamp and author display fields.
	AppendMessage(ctx context.Context, scope models.Scope, authorID int64, ciphertext string, attachment *models.Attachment) (*models.Message, error)
	// FetchMessages returns the newest limit messages of a scope, oldest first.
	FetchMessages(ctx context.Context, scope models.Scope, limit int) ([]*models.Message, error)
	// FetchRecentMessages returns the newest limit non-deleted messages, newest first.
	FetchRecentMessages(ctx context.Context, scope models.Scope, limit int) ([]*models.Message, error)
	GetMessage(ctx context.Context, scope models.Scope, messageID int64) (*models.Message, error)
	MarkEdited(ctx context.Context, scope models.Scope, messageID int64, ciphertext string, editedAt time.Time) error
	MarkDeleted(ctx context.Context, scope models.Scope, messageID int64, ciphertext string) error
}

type ReactionRepository interface {
	// ToggleReaction adds or removes the reaction and returns the new count for that emoji.
	ToggleReaction(ctx context.Context, scope models.Scope, messageID, userID int64, emoji string) (added bool, count int, err error)
}

type PinRepository interface {
	// PinMessage fails with ErrInvalidInput once the scope holds limit pins
	// and with ErrConflict if the message is already pinned.
	PinMessage(ctx context.Context, scope models.Scope, messageID, pinnedBy int64, limit int) error
	UnpinMessage(ctx context.Context, scope models.Scope, messageID int64) error
}

type ConversationRepository interface {
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
}

type UserRepository interface {
	UpdateUserStatus(ctx context.Context, userID int64, status string, at time.Time) error
}

type Database interface {
	MessageRepository
	ReactionRepository
	PinRepository
	ConversationRepository
	UserRepository
	Close() error
}
