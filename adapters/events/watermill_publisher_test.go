package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribe(t *testing.T, ps *gochannel.GoChannel, topic string) <-chan *message.Message {
	t.Helper()
	ch, err := ps.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	return ch
}

func TestPublishKeysIssued(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, NewLogger(false))
	t.Cleanup(func() { _ = ps.Close() })

	msgs := subscribe(t, ps, TopicKeysIssued)
	p := NewWatermillPublisher(ps)

	err := p.PublishKeysIssued(context.Background(), "0xabc", "req-7", 3)
	require.NoError(t, err)

	msg := <-msgs
	msg.Ack()

	assert.Equal(t, "req-7", msg.UUID)
	assert.Equal(t, "citadel", msg.Metadata.Get("producer"))

	var event KeysIssuedEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, "0xabc", event.Address)
	assert.Equal(t, 3, event.KeyCount)
}

func TestPublishLogout(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, NewLogger(false))
	t.Cleanup(func() { _ = ps.Close() })

	msgs := subscribe(t, ps, TopicLogout)
	p := NewWatermillPublisher(ps)

	require.NoError(t, p.PublishLogout(context.Background(), "0xabc", "tok-1"))

	msg := <-msgs
	msg.Ack()

	var event LogoutEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, "tok-1", event.TokenID)
}

func TestPublishSessionCreatedGeneratesIDWhenMissing(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, NewLogger(false))
	t.Cleanup(func() { _ = ps.Close() })

	msgs := subscribe(t, ps, TopicSessionCreated)
	p := NewWatermillPublisher(ps)

	require.NoError(t, p.PublishSessionCreated(context.Background(), "0xabc", ""))

	msg := <-msgs
	msg.Ack()
	assert.NotEmpty(t, msg.UUID)
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	assert.NoError(t, p.PublishKeysIssued(context.Background(), "a", "b", 1))
	assert.NoError(t, p.PublishSessionCreated(context.Background(), "a", "b"))
	assert.NoError(t, p.PublishLogout(context.Background(), "a", "b"))
}
