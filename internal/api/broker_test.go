package api

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "r1"
	ch := b.Subscribe(rid)

	evt := Event{Type: EventRunProgress, Data: map[string]any{"iteration": 1}}
	b.Publish(rid, evt)
	b.Publish("other", Event{Type: "ignored"})

	select {
	case got := <-ch:
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, 1, got.Data["iteration"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// second unsubscribe is a no-op
	b.Unsubscribe(rid, ch)
	b.Publish(rid, evt)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r")
	for i := 0; i < 20; i++ {
		b.Publish("r", Event{Type: EventRunProgress})
	}
	assert.Len(t, ch, cap(ch))
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping redis broker test")
	}
	b, err := NewRedisBroker(context.Background(), url, logr.Discard())
	require.NoError(t, err)
	defer b.Close()

	ch := b.Subscribe("run-test")
	b.Publish("run-test", Event{Type: EventRunFinished, Data: map[string]any{"objective": 85.0}})
	select {
	case got := <-ch:
		assert.Equal(t, EventRunFinished, got.Type)
		assert.Equal(t, 85.0, got.Data["objective"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}
	b.Unsubscribe("run-test", ch)
	for range ch {
	}
}
