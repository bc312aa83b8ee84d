package relay

import (
	"context"
	"testing"
	"time"

	"github.com/SingSongScreamAlong/Ok-Box-Box-sub003/pkg/protocol"
)

func TestRelayClientSend(t *testing.T) {
	client := &relayClient{receive: make(chan protocol.Message, 1)}

	ack := protocol.NewAck(protocol.TypeTelemetry, "s1")

	if !client.send(ack) {
		t.Fatal("expected send to succeed with a free buffer")
	}

	// buffer full
	if client.send(ack) {
		t.Error("expected send to report failure when the buffer is full")
	}

	client.close()

	// after the hub has dropped the client, send must refuse instead of
	// writing to a closed channel
	if client.send(ack) {
		t.Error("expected send to report failure after close")
	}

	client.close()
}

func awaitMessage(t *testing.T, client *relayClient) protocol.Message {
	t.Helper()

	select {
	case message, ok := <-client.receive:
		if !ok {
			t.Fatal("receive channel closed unexpectedly")
		}

		return message
	case <-time.After(time.Second):
		t.Fatal("expected a message before the deadline")
		return nil
	}
}

func awaitViewers(t *testing.T, client *relayClient, want int) {
	t.Helper()

	viewers, ok := awaitMessage(t, client).(protocol.RelayViewers)

	if !ok {
		t.Fatal("expected a relay:viewers message")
	}

	if viewers.ViewerCount != want {
		t.Errorf("expected viewer count %d, got %d", want, viewers.ViewerCount)
	}
}

func TestHubViewerCounts(t *testing.T) {
	hub := NewRelayHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	first := &relayClient{hub: hub, receive: make(chan protocol.Message, 8)}
	second := &relayClient{hub: hub, receive: make(chan protocol.Message, 8)}

	hub.register <- first
	hub.register <- second

	first.Subscribe("s1")
	awaitViewers(t, first, 1)

	second.Subscribe("s1")
	awaitViewers(t, first, 2)
	awaitViewers(t, second, 2)

	// dropping a subscriber notifies the remaining viewers
	hub.unregister <- second
	awaitViewers(t, first, 1)
}

func TestHubSessionBroadcast(t *testing.T) {
	hub := NewRelayHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	subscribed := &relayClient{hub: hub, receive: make(chan protocol.Message, 8)}
	other := &relayClient{hub: hub, receive: make(chan protocol.Message, 8)}

	hub.register <- subscribed
	hub.register <- other

	subscribed.Subscribe("s1")
	awaitViewers(t, subscribed, 1)

	if err := hub.SendToSession("s1", protocol.NewSessionActive("s1", "Monza", protocol.SessionTypeRace)); err != nil {
		t.Fatal(err)
	}

	if _, ok := awaitMessage(t, subscribed).(protocol.SessionActive); !ok {
		t.Error("expected the subscriber to receive the session broadcast")
	}

	select {
	case message := <-other.receive:
		t.Errorf("expected no delivery to unsubscribed clients, got %T", message)
	case <-time.After(time.Millisecond * 50):
	}

	// a broadcast without a session id reaches every connection
	if err := hub.Send(protocol.NewSessionActive("s2", "Spa-Francorchamps", protocol.SessionTypePractice)); err != nil {
		t.Fatal(err)
	}

	if _, ok := awaitMessage(t, subscribed).(protocol.SessionActive); !ok {
		t.Error("expected the subscriber to receive the global broadcast")
	}

	if _, ok := awaitMessage(t, other).(protocol.SessionActive); !ok {
		t.Error("expected the unsubscribed client to receive the global broadcast")
	}
}
