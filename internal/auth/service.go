package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"freecord/internal/config"
	"freecord/internal/database"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated user behind a token.
type Identity struct {
	UserID   int64
	Username string
}

// Claims carries the user id in "sub" as a decimal string. Older tokens put it
// in "user_id" instead.
type Claims struct {
	Username string `json:"username"`
	UserID   int64  `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	conversations database.ConversationRepository
	cfg           *config.Config
}

func NewService(conversations database.ConversationRepository, cfg *config.Config) *Service {
	return &Service{
		conversations: conversations,
		cfg:           cfg,
	}
}

func (s *Service) ValidateToken(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token: %w", chaterrors.ErrUnauthorized)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chaterrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", chaterrors.ErrUnauthorized)
	}

	userID, err := claims.userID()
	if err != nil {
		return nil, err
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("missing username claim: %w", chaterrors.ErrUnauthorized)
	}

	return &Identity{UserID: userID, Username: claims.Username}, nil
}

func (c *Claims) userID() (int64, error) {
	if c.Subject == "" {
		if c.UserID > 0 {
			return c.UserID, nil
		}
		return 0, fmt.Errorf("missing subject claim: %w", chaterrors.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("non-numeric subject %q: %w", c.Subject, chaterrors.ErrUnauthorized)
	}
	return id, nil
}

// AuthorizeConversation fails with ErrForbidden unless userID is one of the
// two participants. A missing conversation is reported the same way.
func (s *Service) AuthorizeConversation(ctx context.Context, conversationID, userID int64) (*models.Conversation, error) {
	convo, err := s.conversations.GetConversation(ctx, conversationID)
	if errors.Is(err, chaterrors.ErrNotFound) {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, chaterrors.ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if !convo.HasParticipant(userID) {
		return nil, fmt.Errorf("user %d not in conversation %d: %w", userID, conversationID, chaterrors.ErrForbidden)
	}
	return convo, nil
}
