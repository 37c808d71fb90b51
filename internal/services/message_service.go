package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"freecord/internal/auth"
	"freecord/internal/database"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"
	"freecord/pkg/logger"
)

const (
	HistoryLimit = 100
	SearchWindow = 200
	SearchLimit  = 50
	EditWindow   = 10 * time.Minute
	MaxPins      = 10
)

// Store is the persistence the request-path operations need.
type Store interface {
	database.MessageRepository
	database.ReactionRepository
	database.PinRepository
}

type Crypto interface {
	Encrypt(ctx context.Context, scope models.Scope, plaintext string) (string, error)
	Decrypt(ctx context.Context, scope models.Scope, ciphertext string) (string, error)
	DecryptOrPlaceholder(ctx context.Context, scope models.Scope, ciphertext string) string
}

type ConversationAuthorizer interface {
	AuthorizeConversation(ctx context.Context, conversationID, userID int64) (*models.Conversation, error)
}

// Broadcaster pushes side effects to clients already connected to a scope.
type Broadcaster interface {
	Broadcast(scope models.Scope, ev models.Event) int
}

type MessageService struct {
	store       Store
	crypto      Crypto
	auth        ConversationAuthorizer
	broadcaster Broadcaster
	now         func() time.Time
}

func NewMessageService(store Store, crypto Crypto, authorizer ConversationAuthorizer, broadcaster Broadcaster) *MessageService {
	return &MessageService{
		store:       store,
		crypto:      crypto,
		auth:        authorizer,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// Authorize checks that actor may use scope. Channels are open to any
// authenticated user; conversations only to their two participants.
func (s *MessageService) Authorize(ctx context.Context, scope models.Scope, actor *auth.Identity) error {
	if !scope.IsConversation() {
		return nil
	}
	_, err := s.auth.AuthorizeConversation(ctx, scope.ID, actor.UserID)
	return err
}

// History returns up to limit of the newest messages, oldest first. A message
// that cannot be decrypted gets a placeholder instead of failing the page.
func (s *MessageService) History(ctx context.Context, scope models.Scope, actor *auth.Identity, limit int) ([]*models.Message, error) {
	if err := s.Authorize(ctx, scope, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}

	messages, err := s.store.FetchMessages(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	for _, msg := range messages {
		if msg.IsDeleted {
			msg.Content = models.DeletedMessageText
			continue
		}
		msg.Content = s.crypto.DecryptOrPlaceholder(ctx, scope, msg.Ciphertext)
	}
	return messages, nil
}

// Search matches query case-insensitively against the newest non-deleted
// messages. Messages that cannot be decrypted are skipped.
func (s *MessageService) Search(ctx context.Context, scope models.Scope, actor *auth.Identity, query string) ([]*models.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query: %w", chaterrors.ErrInvalidInput)
	}
	if err := s.Authorize(ctx, scope, actor); err != nil {
		return nil, err
	}

	messages, err := s.store.FetchRecentMessages(ctx, scope, SearchWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	needle := strings.ToLower(query)
	results := make([]*models.Message, 0)
	for _, msg := range messages {
		plaintext, err := s.crypto.Decrypt(ctx, scope, msg.Ciphertext)
		if err != nil {
			logger.Debug("Skipping undecryptable message %d in %s: %v", msg.ID, scope, err)
			continue
		}
		if !strings.Contains(strings.ToLower(plaintext), needle) {
			continue
		}
		msg.Content = plaintext
		results = append(results, msg)
		if len(results) == SearchLimit {
			break
		}
	}
	return results, nil
}

// authoredMessage loads a message and checks actor wrote it.
func (s *MessageService) authoredMessage(ctx context.Context, scope models.Scope, actor *auth.Identity, messageID int64) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, scope, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Author.ID != actor.UserID {
		return nil, fmt.Errorf("message %d belongs to another user: %w", messageID, chaterrors.ErrForbidden)
	}
	return msg, nil
}

// Edit replaces the content of the actor's own message within EditWindow of
// its creation.
func (s *MessageService) Edit(ctx context.Context, scope models.Scope, actor *auth.Identity, messageID int64, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty content: %w", chaterrors.ErrInvalidInput)
	}
	if err := s.Authorize(ctx, scope, actor); err != nil {
		return nil, err
	}

	msg, err := s.authoredMessage(ctx, scope, actor, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("cannot edit a deleted message: %w", chaterrors.ErrInvalidInput)
	}
	now := s.now().UTC()
	if now.Sub(msg.CreatedAt) > EditWindow {
		return nil, fmt.Errorf("edit window expired: %w", chaterrors.ErrInvalidInput)
	}

	ciphertext, err := s.crypto.Encrypt(ctx, scope, content)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkEdited(ctx, scope, messageID, ciphertext, now); err != nil {
		return nil, err
	}

	msg.Ciphertext = ciphertext
	msg.Content = content
	msg.EditedAt = &now
	s.broadcaster.Broadcast(scope, models.NewMessageEditedEvent(messageID, content, now))
	return msg, nil
}

// Delete soft-deletes the actor's own message. The stored content becomes the
// encrypted tombstone.
func (s *MessageService) Delete(ctx context.Context, scope models.Scope, actor *auth.Identity, messageID int64) error {
	if err := s.Authorize(ctx, scope, actor); err != nil {
		return err
	}

	msg, err := s.authoredMessage(ctx, scope, actor, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return fmt.Errorf("message %d already deleted: %w", messageID, chaterrors.ErrConflict)
	}

	ciphertext, err := s.crypto.Encrypt(ctx, scope, models.DeletedMessageText)
	if err != nil {
		return err
	}
	if err := s.store.MarkDeleted(ctx, scope, messageID, ciphertext); err != nil {
		return err
	}

	s.broadcaster.Broadcast(scope, models.NewMessageDeletedEvent(messageID))
	return nil
}

func (s *MessageService) ToggleReaction(ctx context.Context, scope models.Scope, actor *auth.Identity, messageID int64, emoji string) (*models.ReactionUpdateEvent, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("empty emoji: %w", chaterrors.ErrInvalidInput)
	}
	if err := s.Authorize(ctx, scope, actor); err != nil {
		return nil, err
	}
	if _, err := s.store.GetMessage(ctx, scope, messageID); err != nil {
		return nil, err
	}

	added, count, err := s.store.ToggleReaction(ctx, scope, messageID, actor.UserID, emoji)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle reaction: %w", err)
	}

	ev := models.NewReactionUpdateEvent(messageID, emoji, count, actor.Username, added)
	s.broadcaster.Broadcast(scope, ev)
	return &ev, nil
}

func (s *MessageService) Pin(ctx context.Context, scope models.Scope, actor *auth.Identity, messageID int64) error {
	if err := s.Authorize(ctx, scope, actor); err != nil {
		return err
	}
	if _, err := s.store.GetMessage(ctx, scope, messageID); err != nil {
		return err
	}

	if err := s.store.PinMessage(ctx, scope, messageID, actor.UserID, MaxPins); err != nil {
		return err
	}

	s.broadcaster.Broadcast(scope, models.NewMessagePinnedEvent(messageID, actor.Username))
	return nil
}

func (s *MessageService) Unpin(ctx context.Context, scope models.Scope, actor *auth.Identity, messageID int64) error {
	if err := s.Authorize(ctx, scope, actor); err != nil {
		return err
	}
	if err := s.store.UnpinMessage(ctx, scope, messageID); err != nil {
		return err
	}

	s.broadcaster.Broadcast(scope, models.NewMessageUnpinnedEvent(messageID))
	return nil
}
