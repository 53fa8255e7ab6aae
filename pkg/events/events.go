package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

type EventType string

const (
	EventTypeMessageAppended   EventType = "message-appended"
	EventTypeTriggersFired     EventType = "triggers-fired"
	EventTypeCredentialRotated EventType = "credential-rotated"
	EventTypeResponseReceived  EventType = "response-received"
	EventTypeRequestFailed     EventType = "request-failed"
)

// Event is a notification about a change made by the chat service.
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"sessionId"`
	MessageID string                 `json:"messageId,omitempty"`
	Time      time.Time              `json:"time"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func New(t EventType, sessionID string, data map[string]interface{}) Event {
	return Event{Type: t, SessionID: sessionID, Time: time.Now(), Data: data}
}

func (e Event) WithMessage(id string) Event {
	e.MessageID = id
	return e
}

// FromMessage decodes an event published by WatermillSink.
func FromMessage(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, errors.Wrapf(err, "decode event %s", msg.UUID)
	}
	return e, nil
}
