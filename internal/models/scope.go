package models

import (
	"fmt"
	"strconv"
)

// ConversationKeyOffset separates conversation keys from channel keys in the
// encryption service keyspace.
const ConversationKeyOffset int64 = 1_000_000

type ScopeKind int

const (
	ScopeChannel ScopeKind = iota
	ScopeConversation
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeChannel:
		return "channel"
	case ScopeConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

// Scope identifies a channel or a conversation. Channel 3 and conversation 3
// are different scopes.
type Scope struct {
	Kind ScopeKind
	ID   int64
}

func ChannelScope(id int64) Scope {
	return Scope{Kind: ScopeChannel, ID: id}
}

func ConversationScope(id int64) Scope {
	return Scope{Kind: ScopeConversation, ID: id}
}

func (s Scope) IsConversation() bool {
	return s.Kind == ScopeConversation
}

// KeyID is the id the encryption service derives the scope key from.
func (s Scope) KeyID() int64 {
	if s.Kind == ScopeConversation {
		return s.ID + ConversationKeyOffset
	}
	return s.ID
}

func (s Scope) String() string {
	return s.Kind.String() + ":" + strconv.FormatInt(s.ID, 10)
}

// ParseScopeID parses a path parameter into a positive scope id.
func ParseScopeID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid scope id %q", raw)
	}
	return id, nil
}
