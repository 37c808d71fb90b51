package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventMessage         EventType = "message"
	EventTypingStart     EventType = "typing_start"
	EventTypingStop      EventType = "typing_stop"
	EventStatusUpdate    EventType = "status_update"
	EventMessageEdited   EventType = "message_edited"
	EventMessageDeleted  EventType = "message_deleted"
	EventReactionUpdate  EventType = "reaction_update"
	EventMessagePinned   EventType = "message_pinned"
	EventMessageUnpinned EventType = "message_unpinned"
	EventDMNotification  EventType = "dm_notification"
	EventError           EventType = "error"
)

// Event is the closed set of payloads pushed to live connections. The Type
// field of every variant is set by its constructor.
type Event interface {
	EventType() EventType
	event()
}

// InboundFrame is what clients send over the socket.
type InboundFrame struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// UnmarshalJSON accepts any JSON object. A type or content that is not a
// string decodes as "", so the frame falls back to a chat message.
func (f *InboundFrame) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    json.RawMessage `json:"type"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = InboundFrame{
		Type:    EventType(stringOrEmpty(raw.Type)),
		Content: stringOrEmpty(raw.Content),
	}
	return nil
}

func stringOrEmpty(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Kind defaults anything that is not a typing indicator to a chat message.
func (f InboundFrame) Kind() EventType {
	switch f.Type {
	case EventTypingStart, EventTypingStop:
		return f.Type
	default:
		return EventMessage
	}
}

type MessageEvent struct {
	Type           EventType  `json:"type"`
	ID             int64      `json:"id"`
	Content        string     `json:"content"`
	ChannelID      *int64     `json:"channel_id,omitempty"`
	ConversationID *int64     `json:"conversation_id,omitempty"`
	UserID         int64      `json:"user_id"`
	Username       string     `json:"username"`
	DisplayName    *string    `json:"display_name"`
	AvatarURL      *string    `json:"avatar_url"`
	AttachmentURL  *string    `json:"attachment_url"`
	AttachmentName *string    `json:"attachment_name"`
	AttachmentSize *int64     `json:"attachment_size"`
	AttachmentMIME *string    `json:"attachment_mime"`
	IsDeleted      bool       `json:"is_deleted"`
	EditedAt       *time.Time `json:"edited_at"`
	Reactions      []Reaction `json:"reactions"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewMessageEvent renders a message whose Content already holds plaintext.
func NewMessageEvent(m *Message) MessageEvent {
	ev := MessageEvent{
		Type:        EventMessage,
		ID:          m.ID,
		Content:     m.Content,
		UserID:      m.Author.ID,
		Username:    m.Author.Username,
		DisplayName: m.Author.DisplayName,
		AvatarURL:   m.Author.AvatarURL,
		IsDeleted:   m.IsDeleted,
		EditedAt:    m.EditedAt,
		Reactions:   m.Reactions,
		CreatedAt:   m.CreatedAt,
	}
	scopeID := m.Scope.ID
	if m.Scope.IsConversation() {
		ev.ConversationID = &scopeID
	} else {
		ev.ChannelID = &scopeID
	}
	if a := m.Attachment; a != nil {
		ev.AttachmentURL, ev.AttachmentName = &a.URL, &a.Name
		ev.AttachmentSize, ev.AttachmentMIME = &a.Size, &a.MIME
	}
	if ev.Reactions == nil {
		ev.Reactions = []Reaction{}
	}
	return ev
}

type TypingEvent struct {
	Type     EventType `json:"type"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
}

func NewTypingEvent(kind EventType, userID int64, username string) TypingEvent {
	return TypingEvent{Type: kind, UserID: userID, Username: username}
}

type StatusUpdateEvent struct {
	Type     EventType `json:"type"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Status   string    `json:"status"`
}

func NewStatusUpdateEvent(userID int64, username, status string) StatusUpdateEvent {
	return StatusUpdateEvent{Type: EventStatusUpdate, UserID: userID, Username: username, Status: status}
}

type MessageEditedEvent struct {
	Type       EventType `json:"type"`
	MessageID  int64     `json:"message_id"`
	NewContent string    `json:"new_content"`
	EditedAt   time.Time `json:"edited_at"`
}

func NewMessageEditedEvent(messageID int64, content string, editedAt time.Time) MessageEditedEvent {
	return MessageEditedEvent{Type: EventMessageEdited, MessageID: messageID, NewContent: content, EditedAt: editedAt}
}

type MessageDeletedEvent struct {
	Type      EventType `json:"type"`
	MessageID int64     `json:"message_id"`
}

func NewMessageDeletedEvent(messageID int64) MessageDeletedEvent {
	return MessageDeletedEvent{Type: EventMessageDeleted, MessageID: messageID}
}

type ReactionUpdateEvent struct {
	Type      EventType `json:"type"`
	MessageID int64     `json:"message_id"`
	Emoji     string    `json:"emoji"`
	Count     int       `json:"count"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
}

func NewReactionUpdateEvent(messageID int64, emoji string, count int, user string, added bool) ReactionUpdateEvent {
	action := "removed"
	if added {
		action = "added"
	}
	return ReactionUpdateEvent{Type: EventReactionUpdate, MessageID: messageID, Emoji: emoji, Count: count, User: user, Action: action}
}

type MessagePinnedEvent struct {
	Type      EventType `json:"type"`
	MessageID int64     `json:"message_id"`
	PinnedBy  string    `json:"pinned_by"`
}

func NewMessagePinnedEvent(messageID int64, pinnedBy string) MessagePinnedEvent {
	return MessagePinnedEvent{Type: EventMessagePinned, MessageID: messageID, PinnedBy: pinnedBy}
}

type MessageUnpinnedEvent struct {
	Type      EventType `json:"type"`
	MessageID int64     `json:"message_id"`
}

func NewMessageUnpinnedEvent(messageID int64) MessageUnpinnedEvent {
	return MessageUnpinnedEvent{Type: EventMessageUnpinned, MessageID: messageID}
}

// DMNotificationEvent reaches a participant's connections outside the
// conversation.
type DMNotificationEvent struct {
	Type           EventType `json:"type"`
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
}

func NewDMNotificationEvent(m *Message) DMNotificationEvent {
	return DMNotificationEvent{
		Type:           EventDMNotification,
		ConversationID: m.Scope.ID,
		MessageID:      m.ID,
		SenderID:       m.Author.ID,
		SenderUsername: m.Author.Username,
	}
}

// ErrorEvent is sent only to the connection whose frame failed.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Code: code, Message: message}
}

func (e MessageEvent) EventType() EventType         { return e.Type }
func (e TypingEvent) EventType() EventType          { return e.Type }
func (e StatusUpdateEvent) EventType() EventType    { return e.Type }
func (e MessageEditedEvent) EventType() EventType   { return e.Type }
func (e MessageDeletedEvent) EventType() EventType  { return e.Type }
func (e ReactionUpdateEvent) EventType() EventType  { return e.Type }
func (e MessagePinnedEvent) EventType() EventType   { return e.Type }
func (e MessageUnpinnedEvent) EventType() EventType { return e.Type }
func (e DMNotificationEvent) EventType() EventType  { return e.Type }
func (e ErrorEvent) EventType() EventType           { return e.Type }

func (MessageEvent) event()         {}
func (TypingEvent) event()          {}
func (StatusUpdateEvent) event()    {}
func (MessageEditedEvent) event()   {}
func (MessageDeletedEvent) event()  {}
func (ReactionUpdateEvent) event()  {}
func (MessagePinnedEvent) event()   {}
func (MessageUnpinnedEvent) event() {}
func (DMNotificationEvent) event()  {}
func (ErrorEvent) event()           {}
