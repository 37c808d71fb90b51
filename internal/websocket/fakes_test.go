package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"freecord/internal/auth"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       string
	userID   int64
	username string
	scope    models.Scope
	failing  bool
	sendErr  error

	out       chan []byte
	in        chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	closeCode int
}

var connSeq struct {
	sync.Mutex
	n int
}

func newFakeConn(userID int64, username string, scope models.Scope) *fakeConn {
	connSeq.Lock()
	connSeq.n++
	id := fmt.Sprintf("conn-%d", connSeq.n)
	connSeq.Unlock()

	return &fakeConn{
		id:       id,
		userID:   userID,
		username: username,
		scope:    scope,
		out:      make(chan []byte, 64),
		in:       make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ID() string          { return c.id }
func (c *fakeConn) UserID() int64       { return c.userID }
func (c *fakeConn) Username() string    { return c.username }
func (c *fakeConn) Scope() models.Scope { return c.scope }

func (c *fakeConn) Send(data []byte) error {
	if c.failing {
		return chaterrors.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	select {
	case <-c.done:
		return chaterrors.ErrConnectionClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return chaterrors.ErrSendBufferFull
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	c.closeCode = code
	c.mu.Unlock()
	return c.Close()
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) write(t *testing.T, frame string) {
	t.Helper()
	select {
	case c.in <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatal("frame not consumed")
	}
}

// next returns the next event delivered to c.
func (c *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-c.out:
		var ev map[string]any
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no event received", c.id)
		return nil
	}
}

func (c *fakeConn) expectNone(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.out:
		t.Fatalf("%s: unexpected event %s", c.id, data)
	default:
	}
}

type fakeAuth struct {
	users         map[string]*auth.Identity
	conversations map[int64]*models.Conversation
}

func (a *fakeAuth) ValidateToken(token string) (*auth.Identity, error) {
	id, ok := a.users[token]
	if !ok {
		return nil, fmt.Errorf("bad token: %w", chaterrors.ErrUnauthorized)
	}
	return id, nil
}

func (a *fakeAuth) AuthorizeConversation(_ context.Context, conversationID, userID int64) (*models.Conversation, error) {
	c, ok := a.conversations[conversationID]
	if !ok || !c.HasParticipant(userID) {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, chaterrors.ErrForbidden)
	}
	return c, nil
}

// fakeCrypto prefixes the scope key id so tests can see what was encrypted.
type fakeCrypto struct {
	fail bool
}

func (f *fakeCrypto) Encrypt(_ context.Context, scope models.Scope, plaintext string) (string, error) {
	if f.fail {
		return "", chaterrors.ErrEncryptionUnavailable
	}
	return fmt.Sprintf("enc:%d:%s", scope.KeyID(), plaintext), nil
}

type fakeStore struct {
	mu       sync.Mutex
	messages []*models.Message
	statuses []string
	fail     bool
}

func (s *fakeStore) AppendMessage(_ context.Context, scope models.Scope, authorID int64, ciphertext string, attachment *models.Attachment) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("db down")
	}
	msg := &models.Message{
		ID:         int64(len(s.messages) + 1),
		Scope:      scope,
		Author:     models.Author{ID: authorID, Username: fmt.Sprintf("user%d", authorID)},
		Ciphertext: ciphertext,
		Attachment: attachment,
		CreatedAt:  time.Now(),
	}
	s.messages = append(s.messages, msg)
	stored := *msg
	return &stored, nil
}

func (s *fakeStore) UpdateUserStatus(_ context.Context, userID int64, status string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, fmt.Sprintf("%d:%s", userID, status))
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeStore) statusLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

// gatedStatus blocks the first write of one status until release is closed.
type gatedStatus struct {
	block   string
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu  sync.Mutex
	log []string
}

func newGatedStatus(block string) *gatedStatus {
	return &gatedStatus{
		block:   block,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStatus) UpdateUserStatus(_ context.Context, userID int64, status string, _ time.Time) error {
	if status == g.block {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = append(g.log, fmt.Sprintf("%d:%s", userID, status))
	return nil
}

func (g *gatedStatus) statusLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.log...)
}
