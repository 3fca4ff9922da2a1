package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viralclip-backend/internal/models"
)

func TestBus_SeqStrictlyIncreasing(t *testing.T) {
	b := New(4, nil)

	for i := 0; i < 3; i++ {
		b.Publish("job-1", models.JobRunning, models.Progress{Phase: "probe", Percent: i})
	}

	sub := b.Subscribe("job-1")
	defer sub.Close()

	// Snapshot first: the latest event before subscribing.
	snapshot := <-sub.Events
	assert.Equal(t, int64(3), snapshot.Seq)

	e := b.Publish("job-1", models.JobRunning, models.Progress{Phase: "extract", Percent: 6})
	tail := <-sub.Events
	assert.Equal(t, e.Seq, tail.Seq)
	assert.True(t, tail.Seq > snapshot.Seq)
}

func TestBus_RingBounded(t *testing.T) {
	b := New(2, nil)
	for i := 0; i < 5; i++ {
		b.Publish("job-1", models.JobRunning, models.Progress{Phase: "probe", Percent: i})
	}
	topic := b.topicFor("job-1")
	topic.mu.Lock()
	size := len(topic.ring)
	topic.mu.Unlock()
	assert.Equal(t, 2, size)
}

func TestBus_SlowSubscriberDropped(t *testing.T) {
	b := New(4, nil)
	sub := b.Subscribe("job-1")
	defer sub.Close()

	for i := 0; i < slowSubscriberQueueLimit+5; i++ {
		b.Publish("job-1", models.JobRunning, models.Progress{Phase: "transcribe", Percent: i})
	}

	select {
	case _, ok := <-sub.Events:
		if ok {
			// Drain until closed or timeout — either proves the subscriber
			// was dropped rather than unboundedly buffered.
			for ok {
				_, ok = <-sub.Events
			}
		}
	case <-time.After(time.Second):
		t.Fatal("expected channel activity from dropped subscriber")
	}
}

func TestExternalPublisherCalledOnPublish(t *testing.T) {
	calls := 0
	pub := &countingPublisher{onPublish: func() { calls++ }}
	b := New(4, pub)
	b.Publish("job-1", models.JobCompleted, models.Progress{Phase: "finalize", Percent: 100})
	require.Equal(t, 1, calls)
}

type countingPublisher struct {
	onPublish func()
}

func (c *countingPublisher) Publish(event models.EventFrame) error {
	c.onPublish()
	return nil
}
