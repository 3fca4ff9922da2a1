// Package eventbus implements the per-job progress fan-out of spec §4.3: a
// bounded ring buffer of recent events plus a set of live subscribers, with
// snapshot-then-tail delivery and best-effort drop of slow subscribers.
package eventbus

import (
	"sync"
	"time"

	"viralclip-backend/internal/models"
)

const slowSubscriberQueueLimit = 32

// Subscription is a subscriber's live handle; Events is closed when the
// subscriber is dropped (slow consumer) or unsubscribes.
type Subscription struct {
	Events <-chan models.EventFrame
	cancel func()
}

func (s *Subscription) Close() {
	s.cancel()
}

type subscriber struct {
	ch     chan models.EventFrame
	closed bool
}

type jobTopic struct {
	mu          sync.Mutex
	ring        []models.EventFrame
	ringSize    int
	nextSeq     int64
	subscribers map[int]*subscriber
	nextSubID   int
}

func newJobTopic(ringSize int) *jobTopic {
	return &jobTopic{
		ringSize:    ringSize,
		nextSeq:     1,
		subscribers: make(map[int]*subscriber),
	}
}

// Bus owns one jobTopic per job id. Jobs are created lazily on first
// Publish or Subscribe and never explicitly removed — a finished job's
// topic is small and short-lived enough that process-lifetime retention is
// acceptable, per the "no cross-job ordering, one write path per job"
// model of §5.
type Bus struct {
	mu       sync.Mutex
	topics   map[string]*jobTopic
	ringSize int
	publish  ExternalPublisher
}

// ExternalPublisher is a best-effort fan-out hook to an external
// notification channel (e.g. Supabase Realtime). The Bus calls it after
// in-process delivery and discards its error, so a failure never blocks
// delivery to in-process subscribers.
type ExternalPublisher interface {
	Publish(event models.EventFrame) error
}

func New(ringSize int, publish ExternalPublisher) *Bus {
	if ringSize <= 0 {
		ringSize = 128
	}
	return &Bus{topics: make(map[string]*jobTopic), ringSize: ringSize, publish: publish}
}

func (b *Bus) topicFor(jobID string) *jobTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[jobID]
	if !ok {
		t = newJobTopic(b.ringSize)
		b.topics[jobID] = t
	}
	return t
}

// Publish computes the next seq for the job, pushes into the ring, and
// delivers to every subscriber. Delivery never blocks the publisher: a
// subscriber whose queue is full is dropped instead.
func (b *Bus) Publish(jobID string, status models.JobStatus, p models.Progress) models.EventFrame {
	t := b.topicFor(jobID)

	t.mu.Lock()
	event := models.EventFrame{
		Seq:         t.nextSeq,
		JobID:       jobID,
		Status:      status,
		Phase:       p.Phase,
		Percent:     p.Percent,
		Description: p.Description,
		Timestamp:   time.Now(),
	}
	t.nextSeq++

	t.ring = append(t.ring, event)
	if len(t.ring) > t.ringSize {
		t.ring = t.ring[len(t.ring)-t.ringSize:]
	}

	for id, sub := range t.subscribers {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Slow subscriber: drop it. It may reconnect and resync from
			// the ring snapshot.
			close(sub.ch)
			sub.closed = true
			delete(t.subscribers, id)
		}
	}
	t.mu.Unlock()

	if b.publish != nil {
		_ = b.publish.Publish(event)
	}

	return event
}

// Subscribe delivers the latest ring snapshot immediately (if any), then the
// live tail as events in seq order.
func (b *Bus) Subscribe(jobID string) *Subscription {
	t := b.topicFor(jobID)

	t.mu.Lock()
	ch := make(chan models.EventFrame, slowSubscriberQueueLimit)
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = &subscriber{ch: ch}

	if len(t.ring) > 0 {
		// Non-blocking: the channel was just created with spare capacity,
		// so this never contends with the drop path above.
		ch <- t.ring[len(t.ring)-1]
	}
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subscribers[id]; ok && !sub.closed {
			close(sub.ch)
			sub.closed = true
		}
		delete(t.subscribers, id)
	}

	return &Subscription{Events: ch, cancel: cancel}
}
