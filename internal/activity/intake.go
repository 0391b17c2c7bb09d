package activity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/engagement"
)

// Intake forwards live feed events into the engagement service. The HTTP
// ingest endpoint stays the synchronous path; the intake is the streaming
// path running alongside it.
type Intake struct {
	feed       Feed
	engagement *engagement.Service
}

// NewIntake creates an intake bound to a feed and the engagement service.
func NewIntake(feed Feed, eng *engagement.Service) *Intake {
	return &Intake{
		feed:       feed,
		engagement: eng,
	}
}

// IntakeStats counts one intake run.
type IntakeStats struct {
	// Forwarded events landed in the engagement store.
	Forwarded int
	// Dropped events arrived after their launch window closed.
	Dropped int
	// Failed events were rejected for any other reason.
	Failed int
}

// Run subscribes to every given launch and forwards events until the
// context is cancelled or the feed closes. Events for a closed window are
// counted as dropped, not errors: the feed may deliver a tail of activity
// after an admin close.
func (i *Intake) Run(ctx context.Context, launchIDs []string) (*IntakeStats, error) {
	var channels []<-chan Event
	for _, id := range launchIDs {
		ch, err := i.feed.SubscribeLaunch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("subscribe launch %s: %w", id, err)
		}
		channels = append(channels, ch)
		log.Printf("[activity] subscribed to launch %s", id)
	}

	// Merge the per-launch channels.
	merged := make(chan Event, 256)
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(events <-chan Event) {
			defer wg.Done()
			for event := range events {
				select {
				case merged <- event:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	stats := &IntakeStats{}
	for {
		select {
		case <-ctx.Done():
			return stats, nil
		case event, ok := <-merged:
			if !ok {
				return stats, nil
			}
			i.forward(ctx, event, stats)
		}
	}
}

// forward hands one event to the engagement service and buckets the outcome.
func (i *Intake) forward(ctx context.Context, event Event, stats *IntakeStats) {
	_, err := i.engagement.Ingest(ctx, event.LaunchID, event.UserID,
		domain.EventType(event.EventType), event.Payload, event.At)
	switch {
	case err == nil:
		stats.Forwarded++
	case errors.Is(err, engagement.ErrWindowClosed):
		stats.Dropped++
	default:
		stats.Failed++
		log.Printf("[activity] ingest %s/%s: %v", event.LaunchID, event.UserID, err)
	}
}
