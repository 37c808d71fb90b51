package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"freecord/internal/auth"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	messages  map[int64]*models.Message
	order     []int64
	reactions map[string]bool
	pins      map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		messages:  make(map[int64]*models.Message),
		reactions: make(map[string]bool),
		pins:      make(map[int64]bool),
	}
}

func (m *memStore) add(scope models.Scope, authorID int64, ciphertext string, created time.Time) *models.Message {
	msg := &models.Message{
		ID:         int64(len(m.order) + 1),
		Scope:      scope,
		Author:     models.Author{ID: authorID},
		Ciphertext: ciphertext,
		CreatedAt:  created,
	}
	m.messages[msg.ID] = msg
	m.order = append(m.order, msg.ID)
	return msg
}

func (m *memStore) AppendMessage(_ context.Context, scope models.Scope, authorID int64, ciphertext string, _ *models.Attachment) (*models.Message, error) {
	return m.add(scope, authorID, ciphertext, time.Now()), nil
}

func (m *memStore) inScope(scope models.Scope) []*models.Message {
	var out []*models.Message
	for _, id := range m.order {
		if msg := m.messages[id]; msg.Scope == scope {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memStore) FetchMessages(_ context.Context, scope models.Scope, limit int) ([]*models.Message, error) {
	all := m.inScope(scope)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memStore) FetchRecentMessages(_ context.Context, scope models.Scope, limit int) ([]*models.Message, error) {
	var out []*models.Message
	all := m.inScope(scope)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if !all[i].IsDeleted {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (m *memStore) GetMessage(_ context.Context, scope models.Scope, id int64) (*models.Message, error) {
	msg, ok := m.messages[id]
	if !ok || msg.Scope != scope {
		return nil, fmt.Errorf("message %d: %w", id, chaterrors.ErrNotFound)
	}
	cp := *msg
	return &cp, nil
}

func (m *memStore) MarkEdited(_ context.Context, _ models.Scope, id int64, ciphertext string, at time.Time) error {
	m.messages[id].Ciphertext = ciphertext
	m.messages[id].EditedAt = &at
	return nil
}

func (m *memStore) MarkDeleted(_ context.Context, _ models.Scope, id int64, ciphertext string) error {
	m.messages[id].Ciphertext = ciphertext
	m.messages[id].IsDeleted = true
	return nil
}

func (m *memStore) ToggleReaction(_ context.Context, _ models.Scope, messageID, userID int64, emoji string) (bool, int, error) {
	key := fmt.Sprintf("%d:%d:%s", messageID, userID, emoji)
	added := !m.reactions[key]
	if added {
		m.reactions[key] = true
	} else {
		delete(m.reactions, key)
	}
	count := 0
	for k := range m.reactions {
		if strings.HasPrefix(k, fmt.Sprintf("%d:", messageID)) && strings.HasSuffix(k, ":"+emoji) {
			count++
		}
	}
	return added, count, nil
}

func (m *memStore) PinMessage(_ context.Context, _ models.Scope, messageID, _ int64, limit int) error {
	if len(m.pins) >= limit {
		return chaterrors.ErrInvalidInput
	}
	if m.pins[messageID] {
		return chaterrors.ErrConflict
	}
	m.pins[messageID] = true
	return nil
}

func (m *memStore) UnpinMessage(_ context.Context, _ models.Scope, messageID int64) error {
	if !m.pins[messageID] {
		return chaterrors.ErrNotFound
	}
	delete(m.pins, messageID)
	return nil
}

// fakeCrypto tags ciphertext with the scope key id; "corrupt" never decrypts.
type fakeCrypto struct{}

func (fakeCrypto) Encrypt(_ context.Context, scope models.Scope, plaintext string) (string, error) {
	return fmt.Sprintf("%d|%s", scope.KeyID(), plaintext), nil
}

func (fakeCrypto) Decrypt(_ context.Context, scope models.Scope, ciphertext string) (string, error) {
	prefix := fmt.Sprintf("%d|", scope.KeyID())
	if !strings.HasPrefix(ciphertext, prefix) {
		return "", chaterrors.ErrEncryptionUnavailable
	}
	return strings.TrimPrefix(ciphertext, prefix), nil
}

func (c fakeCrypto) DecryptOrPlaceholder(ctx context.Context, scope models.Scope, ciphertext string) string {
	pt, err := c.Decrypt(ctx, scope, ciphertext)
	if err != nil {
		return models.DecryptionErrorText
	}
	return pt
}

type fakeAuthorizer struct{}

func (fakeAuthorizer) AuthorizeConversation(_ context.Context, conversationID, userID int64) (*models.Conversation, error) {
	c := &models.Conversation{ID: 3, User1ID: 1, User2ID: 2}
	if conversationID != c.ID || !c.HasParticipant(userID) {
		return nil, chaterrors.ErrForbidden
	}
	return c, nil
}

type recorder struct {
	events []models.Event
	scopes []models.Scope
}

func (r *recorder) Broadcast(scope models.Scope, ev models.Event) int {
	r.events = append(r.events, ev)
	r.scopes = append(r.scopes, scope)
	return 1
}

var (
	alice = &auth.Identity{UserID: 1, Username: "alice"}
	bob   = &auth.Identity{UserID: 2, Username: "bob"}
	carol = &auth.Identity{UserID: 3, Username: "carol"}
)

func newTestService() (*MessageService, *memStore, *recorder) {
	store := newMemStore()
	rec := &recorder{}
	svc := NewMessageService(store, fakeCrypto{}, fakeAuthorizer{}, rec)
	return svc, store, rec
}

func TestHistory(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	scope := models.ChannelScope(5)

	store.add(scope, 1, "5|first", time.Now())
	store.add(scope, 2, "corrupt", time.Now())
	deleted := store.add(scope, 1, "5|gone", time.Now())
	deleted.IsDeleted = true
	store.add(models.ChannelScope(6), 1, "6|elsewhere", time.Now())

	msgs, err := svc.History(ctx, scope, alice, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, models.DecryptionErrorText, msgs[1].Content)
	assert.Equal(t, models.DeletedMessageText, msgs[2].Content)

	msgs, err = svc.History(ctx, scope, alice, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, deleted.ID, msgs[0].ID)
}

func TestHistory_ConversationRequiresParticipant(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	scope := models.ConversationScope(3)
	store.add(scope, 1, "1000003|hi", time.Now())

	msgs, err := svc.History(ctx, scope, bob, 0)
	require.NoError(t, err)
	assert.Equal(t, "hi", msgs[0].Content)

	_, err = svc.History(ctx, scope, carol, 0)
	assert.ErrorIs(t, err, chaterrors.ErrForbidden)
}

func TestSearch(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	scope := models.ChannelScope(5)

	store.add(scope, 1, "5|Hello world", time.Now())
	store.add(scope, 1, "corrupt", time.Now())
	store.add(scope, 2, "5|nothing here", time.Now())
	store.add(scope, 2, "5|HELLO again", time.Now())
	gone := store.add(scope, 2, "5|hello deleted", time.Now())
	gone.IsDeleted = true

	results, err := svc.Search(ctx, scope, alice, "hello")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "HELLO again", results[0].Content)
	assert.Equal(t, "Hello world", results[1].Content)

	results, err = svc.Search(ctx, scope, alice, "missing")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = svc.Search(ctx, scope, alice, "  ")
	assert.ErrorIs(t, err, chaterrors.ErrInvalidInput)
}

func TestSearch_Capped(t *testing.T) {
	svc, store, _ := newTestService()
	scope := models.ChannelScope(5)
	for i := 0; i < SearchLimit+20; i++ {
		store.add(scope, 1, "5|match", time.Now())
	}

	results, err := svc.Search(context.Background(), scope, alice, "MATCH")
	require.NoError(t, err)
	assert.Len(t, results, SearchLimit)
}

func TestEdit(t *testing.T) {
	svc, store, rec := newTestService()
	ctx := context.Background()
	scope := models.ChannelScope(5)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	fresh := store.add(scope, 1, "5|old", now.Add(-time.Minute))
	stale := store.add(scope, 1, "5|old", now.Add(-11*time.Minute))
	dead := store.add(scope, 1, "5|old", now)
	dead.IsDeleted = true

	msg, err := svc.Edit(ctx, scope, alice, fresh.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", msg.Content)
	assert.Equal(t, "5|new", store.messages[fresh.ID].Ciphertext)
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.NewMessageEditedEvent(fresh.ID, "new", now), rec.events[0])

	_, err = svc.Edit(ctx, scope, bob, fresh.ID, "hijack")
	assert.ErrorIs(t, err, chaterrors.ErrForbidden)
	_, err = svc.Edit(ctx, scope, alice, stale.ID, "late")
	assert.ErrorIs(t, err, chaterrors.ErrInvalidInput)
	_, err = svc.Edit(ctx, scope, alice, dead.ID, "zombie")
	assert.ErrorIs(t, err, chaterrors.ErrInvalidInput)
	_, err = svc.Edit(ctx, scope, alice, fresh.ID, " ")
	assert.ErrorIs(t, err, chaterrors.ErrInvalidInput)
	_, err = svc.Edit(ctx, scope, alice, 999, "x")
	assert.ErrorIs(t, err, chaterrors.ErrNotFound)

	assert.Len(t, rec.events, 1)
}

func TestDelete(t *testing.T) {
	svc, store, rec := newTestService()
	ctx := context.Background()
	scope := models.ChannelScope(5)
	msg := store.add(scope, 1, "5|bye", time.Now())

	assert.ErrorIs(t, svc.Delete(ctx, scope, bob, msg.ID), chaterrors.ErrForbidden)

	require.NoError(t, svc.Delete(ctx, scope, alice, msg.ID))
	assert.True(t, store.messages[msg.ID].IsDeleted)
	assert.Equal(t, "5|"+models.DeletedMessageText, store.messages[msg.ID].Ciphertext)
	assert.Equal(t, []models.Event{models.NewMessageDeletedEvent(msg.ID)}, rec.events)

	assert.ErrorIs(t, svc.Delete(ctx, scope, alice, msg.ID), chaterrors.ErrConflict)
}

func TestToggleReaction(t *testing.T) {
	svc, store, rec := newTestService()
	ctx := context.Background()
	scope := models.ConversationScope(3)
	msg := store.add(scope, 1, "1000003|hi", time.Now())

	ev, err := svc.ToggleReaction(ctx, scope, bob, msg.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, "added", ev.Action)
	assert.Equal(t, 1, ev.Count)
	assert.Equal(t, "bob", ev.User)

	_, err = svc.ToggleReaction(ctx, scope, alice, msg.ID, "👍")
	require.NoError(t, err)

	ev, err = svc.ToggleReaction(ctx, scope, bob, msg.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, "removed", ev.Action)
	assert.Equal(t, 1, ev.Count)
	assert.Len(t, rec.events, 3)
	assert.Equal(t, scope, rec.scopes[0])

	_, err = svc.ToggleReaction(ctx, scope, carol, msg.ID, "👍")
	assert.ErrorIs(t, err, chaterrors.ErrForbidden)
	_, err = svc.ToggleReaction(ctx, scope, bob, msg.ID, "")
	assert.ErrorIs(t, err, chaterrors.ErrInvalidInput)
}

func TestPinUnpin(t *testing.T) {
	svc, store, rec := newTestService()
	ctx := context.Background()
	scope := models.ChannelScope(5)

	var ids []int64
	for i := 0; i < MaxPins+1; i++ {
		ids = append(ids, store.add(scope, 1, "5|m", time.Now()).ID)
	}

	require.NoError(t, svc.Pin(ctx, scope, bob, ids[0]))
	assert.Equal(t, models.NewMessagePinnedEvent(ids[0], "bob"), rec.events[0])
	assert.ErrorIs(t, svc.Pin(ctx, scope, bob, ids[0]), chaterrors.ErrConflict)

	for _, id := range ids[1:MaxPins] {
		require.NoError(t, svc.Pin(ctx, scope, alice, id))
	}
	assert.ErrorIs(t, svc.Pin(ctx, scope, alice, ids[MaxPins]), chaterrors.ErrInvalidInput)

	require.NoError(t, svc.Unpin(ctx, scope, alice, ids[0]))
	assert.Equal(t, models.NewMessageUnpinnedEvent(ids[0]), rec.events[len(rec.events)-1])
	assert.ErrorIs(t, svc.Unpin(ctx, scope, alice, ids[0]), chaterrors.ErrNotFound)

	assert.ErrorIs(t, svc.Pin(ctx, scope, alice, 999), chaterrors.ErrNotFound)
}
