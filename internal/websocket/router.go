package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"freecord/internal/auth"
	"freecord/internal/metrics"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"
	"freecord/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Application close codes sent when a handshake is refused.
const (
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

type Authenticator interface {
	ValidateToken(token string) (*auth.Identity, error)
	AuthorizeConversation(ctx context.Context, conversationID, userID int64) (*models.Conversation, error)
}

type Encrypter interface {
	Encrypt(ctx context.Context, scope models.Scope, plaintext string) (string, error)
}

type MessageAppender interface {
	AppendMessage(ctx context.Context, scope models.Scope, authorID int64, ciphertext string, attachment *models.Attachment) (*models.Message, error)
}

type StatusRecorder interface {
	UpdateUserStatus(ctx context.Context, userID int64, status string, at time.Time) error
}

// StatusRecorders writes to every recorder and joins their errors.
type StatusRecorders []StatusRecorder

func (rs StatusRecorders) UpdateUserStatus(ctx context.Context, userID int64, status string, at time.Time) error {
	var errs []error
	for _, r := range rs {
		if err := r.UpdateUserStatus(ctx, userID, status, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Endpoint is the transport side of a session.
type Endpoint interface {
	Conn
	ReadFrame() ([]byte, error)
	CloseWithCode(code int, reason string) error
}

// Admission is the result of a successful handshake.
type Admission struct {
	Identity *auth.Identity
	// Conversation is set for conversation scopes only.
	Conversation *models.Conversation
}

// State of a Session. The handshake runs before a Session exists, so every
// session starts out Authenticated; the zero value is never observed.
type State int32

const (
	StateAuthenticated State = iota + 1
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Router drives every connection from handshake to close.
type Router struct {
	hub      *Hub
	auth     Authenticator
	crypto   Encrypter
	messages MessageAppender
	status   StatusRecorder
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRouter(hub *Hub, authenticator Authenticator, crypto Encrypter, messages MessageAppender, status StatusRecorder, m *metrics.Metrics) *Router {
	return &Router{
		hub:      hub,
		auth:     authenticator,
		crypto:   crypto,
		messages: messages,
		status:   status,
		metrics:  m,
		now:      time.Now,
	}
}

// Handshake authenticates token and, for conversation scopes, checks
// participation. Errors wrap ErrUnauthorized or ErrForbidden.
func (r *Router) Handshake(ctx context.Context, scope models.Scope, token string) (*Admission, error) {
	identity, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	adm := &Admission{Identity: identity}
	if scope.IsConversation() {
		convo, err := r.auth.AuthorizeConversation(ctx, scope.ID, identity.UserID)
		if err != nil {
			return nil, err
		}
		adm.Conversation = convo
	}
	return adm, nil
}

// CloseCode maps a handshake error to the close frame sent to the client.
func CloseCode(err error) (int, string) {
	switch {
	case errors.Is(err, chaterrors.ErrUnauthorized):
		return CloseUnauthorized, "Unauthorized"
	case errors.Is(err, chaterrors.ErrForbidden):
		return CloseForbidden, "Not a participant"
	default:
		return websocket.CloseInternalServerErr, "Internal error"
	}
}

// Session is one admitted connection.
type Session struct {
	router *Router
	ep     Endpoint
	adm    *Admission
	state  atomic.Int32
}

func (r *Router) NewSession(ep Endpoint, adm *Admission) *Session {
	s := &Session{router: r, ep: ep, adm: adm}
	s.state.Store(int32(StateAuthenticated))
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Run registers the connection, handles frames until the transport closes
// and then cleans up. It returns ErrMalformedFrame if the session was closed
// because of an undecodable frame.
func (s *Session) Run(ctx context.Context) error {
	s.open(ctx)
	defer s.close(ctx)

	for {
		data, err := s.ep.ReadFrame()
		if err != nil {
			return nil
		}

		if err := s.handleFrame(ctx, data); err != nil {
			s.ep.CloseWithCode(websocket.CloseUnsupportedData, "Malformed frame")
			return err
		}
	}
}

func (s *Session) open(ctx context.Context) {
	r := s.router
	userID := s.ep.UserID()

	unlock := r.hub.presence.Lock(userID)
	r.hub.registry.Connect(s.ep)
	if r.hub.presence.Add(userID, s.ep) {
		s.recordStatus(ctx, models.StatusOnline)
		r.hub.BroadcastExcept(s.ep.Scope(), models.NewStatusUpdateEvent(userID, s.ep.Username(), models.StatusOnline), userID)
	}
	unlock()

	r.metrics.ConnectionOpened()
	r.metrics.SetOnlineUsers(r.hub.presence.OnlineCount())
	s.state.Store(int32(StateActive))

	logger.L().Debug("connection opened",
		zap.String("conn", s.ep.ID()),
		zap.Int64("user_id", userID),
		zap.Stringer("scope", s.ep.Scope()),
	)
}

func (s *Session) close(ctx context.Context) {
	r := s.router
	userID := s.ep.UserID()
	s.state.Store(int32(StateClosed))

	unlock := r.hub.presence.Lock(userID)
	r.hub.registry.Disconnect(s.ep.Scope(), s.ep)
	s.ep.Close()
	if r.hub.presence.Remove(userID, s.ep) {
		// The username captured at connect time is used; nothing is re-read.
		s.recordStatus(context.WithoutCancel(ctx), models.StatusOffline)
		r.hub.Broadcast(s.ep.Scope(), models.NewStatusUpdateEvent(userID, s.ep.Username(), models.StatusOffline))
	}
	unlock()

	r.metrics.ConnectionClosed()
	r.metrics.SetOnlineUsers(r.hub.presence.OnlineCount())

	logger.L().Debug("connection closed",
		zap.String("conn", s.ep.ID()),
		zap.Int64("user_id", userID),
		zap.Stringer("scope", s.ep.Scope()),
	)
}

func (s *Session) recordStatus(ctx context.Context, status string) {
	if s.router.status == nil {
		return
	}
	if err := s.router.status.UpdateUserStatus(ctx, s.ep.UserID(), status, s.router.now()); err != nil {
		logger.Error("Error updating status of user %d: %v", s.ep.UserID(), err)
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) error {
	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrMalformedFrame, err)
	}

	switch kind := frame.Kind(); kind {
	case models.EventTypingStart, models.EventTypingStop:
		s.router.hub.BroadcastExcept(s.ep.Scope(), models.NewTypingEvent(kind, s.ep.UserID(), s.ep.Username()), s.ep.UserID())
	default:
		s.handleMessage(ctx, frame.Content)
	}
	return nil
}

// handleMessage persists before it broadcasts. Whitespace-only content is
// dropped without a reply.
func (s *Session) handleMessage(ctx context.Context, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}

	r := s.router
	scope := s.ep.Scope()

	ciphertext, err := r.crypto.Encrypt(ctx, scope, content)
	if err != nil {
		logger.Error("Error encrypting message in %s: %v", scope, err)
		s.reply(models.NewErrorEvent("encryption_unavailable", "Message could not be encrypted"))
		return
	}

	msg, err := r.messages.AppendMessage(ctx, scope, s.ep.UserID(), ciphertext, nil)
	if err != nil {
		logger.Error("Error saving message in %s: %v", scope, err)
		s.reply(models.NewErrorEvent("persist_failed", "Message could not be saved"))
		return
	}
	msg.Content = content

	r.hub.Broadcast(scope, models.NewMessageEvent(msg))

	if convo := s.adm.Conversation; convo != nil {
		r.hub.NotifyUser(convo.Peer(s.ep.UserID()), models.NewDMNotificationEvent(msg), scope)
	}
}

// reply goes to this connection only.
func (s *Session) reply(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.ep.Send(data); err != nil {
		logger.Debug("Error replying on %s: %v", s.ep.ID(), err)
	}
}
