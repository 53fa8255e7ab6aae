package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type NodeID uuid.UUID

var NullNode NodeID = NodeID(uuid.Nil)

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

// ParseNodeID parses the textual form of a message id.
func ParseNodeID(s string) (NodeID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return NullNode, err
	}
	return NodeID(id), nil
}

// MarshalJSON renders NullNode as null so that roots and leaves read naturally in stored sessions.
func (id NodeID) MarshalJSON() ([]byte, error) {
	if id == NullNode {
		return []byte("null"), nil
	}
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || string(data) == `""` {
		*id = NullNode
		return nil
	}
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

func (s *Speaker) UnmarshalText(text []byte) error {
	switch string(text) {
	case "user":
		*s = SpeakerUser
	case "assistant", "ai", "model":
		*s = SpeakerAssistant
	default:
		return fmt.Errorf("unknown speaker %q", string(text))
	}
	return nil
}

// TokenUsage is the token accounting reported for a single model response.
type TokenUsage struct {
	Input    int `json:"input"`
	Output   int `json:"output"`
	Thinking int `json:"thinking"`
	Total    int `json:"total"`
}

// Message is a single node of a conversation tree.
//
// ParentID and ActiveChildID are the only links between nodes. NullNode stands for
// "no parent" (the root) and "no active child" (a leaf) respectively.
type Message struct {
	ID            NodeID                 `json:"id"`
	ParentID      NodeID                 `json:"parentId"`
	ActiveChildID NodeID                 `json:"activeChildId"`
	Speaker       Speaker                `json:"speaker"`
	Text          string                 `json:"text"`
	Time          time.Time              `json:"time"`
	LastUpdate    time.Time              `json:"lastUpdate"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	TokenUsage    *TokenUsage            `json:"tokenUsage,omitempty"`
}

type MessageOption func(*Message)

func WithMetadata(metadata map[string]interface{}) MessageOption {
	return func(m *Message) {
		m.Metadata = metadata
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
		m.LastUpdate = t
	}
}

func WithID(id NodeID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTokenUsage(u *TokenUsage) MessageOption {
	return func(m *Message) {
		m.TokenUsage = u
	}
}

func NewMessage(speaker Speaker, text string, options ...MessageOption) *Message {
	now := time.Now()
	ret := &Message{
		ID:            NewNodeID(),
		ParentID:      NullNode,
		ActiveChildID: NullNode,
		Speaker:       speaker,
		Text:          text,
		Time:          now,
		LastUpdate:    now,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewUserMessage(text string, options ...MessageOption) *Message {
	return NewMessage(SpeakerUser, text, options...)
}

func NewAssistantMessage(text string, options ...MessageOption) *Message {
	return NewMessage(SpeakerAssistant, text, options...)
}

// SetMetadata stores a value in the message metadata, allocating the map if needed.
func (m *Message) SetMetadata(key string, value interface{}) {
	if m.Metadata == nil {
		m.Metadata = map[string]interface{}{}
	}
	m.Metadata[key] = value
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Speaker, strings.TrimRight(m.Text, "\n"))
}

// Conversation is a linear sequence of messages, usually a path through a Tree.
type Conversation []*Message

func (c Conversation) Texts() []string {
	ret := make([]string, 0, len(c))
	for _, m := range c {
		ret = append(ret, m.Text)
	}
	return ret
}
