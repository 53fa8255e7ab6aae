package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRouterDeliversSinkEvents(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	received := make(chan Event, 4)
	router.AddHandler("collect", DefaultTopic, func(msg *message.Message) error {
		e, err := FromMessage(msg)
		if err != nil {
			return err
		}
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	sink := router.Sink(DefaultTopic)
	require.NoError(t, sink.PublishEvent(New(EventTypeCredentialRotated, "s1", map[string]interface{}{"to": "k2"})))
	require.NoError(t, sink.PublishEvent(New(EventTypeResponseReceived, "s1", nil).WithMessage("m1")))

	var got []Event
	for len(got) < 2 {
		select {
		case e := <-received:
			got = append(got, e)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %d events", len(got))
		}
	}
	assert.Equal(t, EventTypeCredentialRotated, got[0].Type)
	assert.Equal(t, "k2", got[0].Data["to"])
	assert.Equal(t, "m1", got[1].MessageID)

	require.NoError(t, router.Close())
}

func TestLogEventsToleratesGarbage(t *testing.T) {
	msg := message.NewMessage("x", []byte("not json"))
	assert.NoError(t, LogEvents(msg))

	msg = message.NewMessage("y", []byte(`{"type":"request-failed","sessionId":"s"}`))
	assert.NoError(t, LogEvents(msg))
}
