package stub

import (
	"context"
	"sync"

	"pi-launchpad/internal/activity"
)

// Feed implements activity.Feed for testing.
type Feed struct {
	mu     sync.Mutex
	subs   map[string][]chan activity.Event
	closed bool

	// Err, when set, is returned by SubscribeLaunch.
	Err error
}

// NewFeed creates a new stub feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[string][]chan activity.Event)}
}

// SubscribeLaunch registers a subscriber channel for the launch.
func (f *Feed) SubscribeLaunch(_ context.Context, launchID string) (<-chan activity.Event, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan activity.Event, 64)
	f.subs[launchID] = append(f.subs[launchID], ch)
	return ch, nil
}

// Subscribers reports how many channels are registered for the launch.
func (f *Feed) Subscribers(launchID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[launchID])
}

// Emit delivers an event to every subscriber of its launch.
func (f *Feed) Emit(event activity.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	for _, ch := range f.subs[event.LaunchID] {
		ch <- event
	}
}

// Close closes every subscriber channel.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	for _, channels := range f.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	return nil
}
