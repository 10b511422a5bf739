package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Line, want int) []string {
	t.Helper()
	var got []string
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-ch:
			if line == nil {
				return got
			}
			got = append(got, *line)
		case <-deadline:
			require.Failf(t, "timed out", "got %d of %d lines", len(got), want)
		}
	}
}

func TestSubscriberObservesOrderedStream(t *testing.T) {
	b := New()
	b.Register(1)
	b.Publish(1, "one")
	b.Publish(1, "two")

	snapshot, ch, err := b.Subscribe(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, snapshot)

	b.Publish(1, "three")
	b.Publish(1, "four")
	b.Finish(1)

	assert.Equal(t, []string{"three", "four"}, collect(t, ch, 2))
}

func TestLateSubscriberGetsReplayAndSentinel(t *testing.T) {
	b := New()
	b.Register(2)
	b.Publish(2, "done already")
	b.Finish(2)

	snapshot, ch, err := b.Subscribe(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"done already"}, snapshot)
	assert.Empty(t, collect(t, ch, 0))
}

func TestSubscribeUnregistered(t *testing.T) {
	b := New()
	_, _, err := b.Subscribe(99)
	assert.Error(t, err)
}

func TestPublishUnregisteredIsNoop(t *testing.T) {
	b := New()
	b.Publish(5, "nobody listening")
	b.Finish(5)
	assert.Nil(t, b.Backlog(5))
}

func TestPublisherNeverBlocksOnSlowConsumer(t *testing.T) {
	b := New()
	b.Register(3)
	_, ch, err := b.Subscribe(3)
	require.NoError(t, err)

	// Nobody reads ch while publishing.
	published := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(3, "line")
		}
		b.Finish(3)
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow consumer")
	}

	assert.Len(t, collect(t, ch, 1000), 1000)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New()
	b.Register(4)
	_, ch, err := b.Subscribe(4)
	require.NoError(t, err)

	b.Unsubscribe(4, ch)
	b.Unsubscribe(4, ch)
	b.Publish(4, "after detach")
	assert.Equal(t, []string{"after detach"}, b.Backlog(4))
}

func TestCleanupDropsState(t *testing.T) {
	b := New()
	b.Register(6)
	b.Publish(6, "a")
	b.Finish(6)
	b.Cleanup(6)

	assert.Nil(t, b.Backlog(6))
	_, _, err := b.Subscribe(6)
	assert.Error(t, err)
}

func TestFinishedFlag(t *testing.T) {
	b := New()
	b.Register(7)
	assert.False(t, b.Finished(7))
	b.Finish(7)
	assert.True(t, b.Finished(7))
}
