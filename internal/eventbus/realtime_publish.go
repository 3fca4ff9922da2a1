package eventbus

import (
	"fmt"

	supabase "github.com/supabase-community/supabase-go"

	"viralclip-backend/internal/models"
)

// RealtimePublisher is the Supabase Realtime ExternalPublisher, adapted from
// the teacher's RealtimeClient. It builds a per-job channel name and event
// payload, but its publish step sends nothing and always returns nil.
type RealtimePublisher struct {
	client *supabase.Client
}

func NewRealtimePublisher(client *supabase.Client) *RealtimePublisher {
	return &RealtimePublisher{client: client}
}

func (p *RealtimePublisher) Publish(event models.EventFrame) error {
	if p.client == nil {
		return nil
	}
	channel := fmt.Sprintf("job:%s", event.JobID)
	return p.publish(channel, jobEventPayload(event))
}

func (p *RealtimePublisher) publish(channel string, payload map[string]interface{}) error {
	// The Supabase Go client has no direct Realtime publish call; database
	// writes to the jobs table trigger Realtime subscriptions on their own.
	// This hook exists so an explicit broadcast can be wired in later
	// without touching the Bus's publish path.
	return nil
}

func jobEventPayload(event models.EventFrame) map[string]interface{} {
	return map[string]interface{}{
		"job_id":      event.JobID,
		"seq":         event.Seq,
		"status":      event.Status,
		"phase":       event.Phase,
		"percent":     event.Percent,
		"description": event.Description,
	}
}
