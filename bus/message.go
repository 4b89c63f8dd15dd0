// Package bus carries control messages between the agent and its open
// foreground clients.
//
// Messages are JSON objects discriminated by a "type" field. Delivery is
// fire-and-forget: at most once per send, no acknowledgement, and a slow
// client never blocks the others.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/offlinekit/records"
)

// Sentinel errors for message decoding.
var (
	ErrUnknownType    = errors.New("bus: unknown message type")
	ErrInvalidMessage = errors.New("bus: invalid message")
)

// Type discriminates a Message.
type Type string

// Inbound types, sent by clients.
const (
	TypeForceActivate     Type = "FORCE_ACTIVATE"
	TypeCacheConversation Type = "CACHE_CONVERSATION"
	TypeRequestSync       Type = "REQUEST_SYNC"
	TypeShowInstallPrompt Type = "SHOW_INSTALL_PROMPT"
)

// Outbound types, sent by the agent.
const (
	TypeConversationsSynced    Type = "CONVERSATIONS_SYNCED"
	TypeInstallPromptAvailable Type = "INSTALL_PROMPT_AVAILABLE"
	TypeInstallOutcome         Type = "INSTALL_OUTCOME"
	TypeNotification           Type = "NOTIFICATION"
)

// InstallPrompt is the opaque handle of a deferred install offer.
type InstallPrompt struct {
	ID        string   `json:"id"`
	Platforms []string `json:"platforms,omitempty"`
}

// Notification is a rendered push event.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
}

// Message is the tagged union exchanged on the bus. Only the payload field
// matching Type is set.
type Message struct {
	Type         Type             `json:"type"`
	Record       *records.Record  `json:"record,omitempty"`
	Tag          string           `json:"tag,omitempty"`
	Records      []records.Record `json:"records,omitempty"`
	Prompt       *InstallPrompt   `json:"prompt,omitempty"`
	Outcome      string           `json:"outcome,omitempty"`
	Notification *Notification    `json:"notification,omitempty"`
}

// MarshalJSON always emits the records array of CONVERSATIONS_SYNCED, even
// when empty.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire Message
	if m.Type != TypeConversationsSynced {
		return json.Marshal(wire(m))
	}
	recs := m.Records
	if recs == nil {
		recs = []records.Record{}
	}
	return json.Marshal(struct {
		Type    Type             `json:"type"`
		Records []records.Record `json:"records"`
	}{m.Type, recs})
}

// Decode parses and validates one inbound or outbound message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks that the payload required by Type is present.
func (m Message) Validate() error {
	switch m.Type {
	case TypeForceActivate, TypeShowInstallPrompt, TypeConversationsSynced:
		return nil
	case TypeCacheConversation:
		if m.Record == nil {
			return fmt.Errorf("%w: %s requires a record", ErrInvalidMessage, m.Type)
		}
		return m.Record.Validate()
	case TypeRequestSync:
		if strings.TrimSpace(m.Tag) == "" {
			return fmt.Errorf("%w: %s requires a tag", ErrInvalidMessage, m.Type)
		}
		return nil
	case TypeInstallPromptAvailable:
		if m.Prompt == nil {
			return fmt.Errorf("%w: %s requires a prompt", ErrInvalidMessage, m.Type)
		}
		return nil
	case TypeInstallOutcome:
		if m.Outcome == "" {
			return fmt.Errorf("%w: %s requires an outcome", ErrInvalidMessage, m.Type)
		}
		return nil
	case TypeNotification:
		if m.Notification == nil {
			return fmt.Errorf("%w: %s requires a notification", ErrInvalidMessage, m.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// ConversationsSynced builds the sync-result broadcast.
func ConversationsSynced(recs []records.Record) Message {
	return Message{Type: TypeConversationsSynced, Records: recs}
}

// InstallPromptAvailable announces a deferred install offer.
func InstallPromptAvailable(prompt InstallPrompt) Message {
	return Message{Type: TypeInstallPromptAvailable, Prompt: &prompt}
}

// InstallOutcome reports the result of a replayed install prompt.
func InstallOutcome(outcome string) Message {
	return Message{Type: TypeInstallOutcome, Outcome: outcome}
}

// NotificationMessage carries a rendered push event.
func NotificationMessage(n Notification) Message {
	return Message{Type: TypeNotification, Notification: &n}
}
