package models

import "time"

const (
	// DeletedMessageText replaces the content of soft-deleted messages on read.
	DeletedMessageText = "This message was deleted"
	// DecryptionErrorText replaces a single message that could not be decrypted.
	DecryptionErrorText = "[decryption error]"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Attachment struct {
	URL  string `json:"attachment_url"`
	Name string `json:"attachment_name"`
	Size int64  `json:"attachment_size"`
	MIME string `json:"attachment_mime"`
}

// Author carries the display fields attached to a message.
type Author struct {
	ID          int64   `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Message is a stored message. Ciphertext is what persistence holds; Content
// is only filled in after decryption.
type Message struct {
	ID         int64       `json:"id"`
	Scope      Scope       `json:"-"`
	Author     Author      `json:"author"`
	Ciphertext string      `json:"-"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsDeleted  bool        `json:"is_deleted"`
	EditedAt   *time.Time  `json:"edited_at"`
	CreatedAt  time.Time   `json:"created_at"`
	Reactions  []Reaction  `json:"reactions"`
}

// Conversation is a direct conversation between exactly two users.
type Conversation struct {
	ID        int64     `json:"id"`
	User1ID   int64     `json:"user1_id"`
	User2ID   int64     `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Peer returns the other participant.
func (c *Conversation) Peer(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

type EditMessageRequest struct {
	Content string `json:"content"`
}
