package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillSinkRoundTrip(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10}, watermill.NopLogger{})
	defer func() { _ = pubSub.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, "chat")
	require.NoError(t, err)

	sink := NewWatermillSink(pubSub, "chat")
	require.NoError(t, sink.PublishEvent(New(EventTypeTriggersFired, "s1", map[string]interface{}{"fired": []string{"t1"}})))
	require.NoError(t, sink.PublishEvent(New(EventTypeMessageAppended, "s1", nil).WithMessage("m1")))

	for i, expected := range []EventType{EventTypeTriggersFired, EventTypeMessageAppended} {
		select {
		case msg := <-messages:
			e, err := FromMessage(msg)
			require.NoError(t, err)
			assert.Equal(t, expected, e.Type)
			assert.Equal(t, "s1", e.SessionID)
			assert.Equal(t, string(rune('0'+i)), msg.Metadata.Get("sequence_number"))
			msg.Ack()
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestNullSink(t *testing.T) {
	assert.NoError(t, NewNullSink().PublishEvent(Event{}))
}
