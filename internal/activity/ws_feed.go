package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSFeedConfig configures WebSocket feed behavior.
type WSFeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout is how long to wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSFeedConfig returns default feed configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
	}
}

// WSFeed implements Feed over the platform's WebSocket activity stream.
// It reconnects with exponential backoff and resubscribes every active
// launch after a connection drop.
type WSFeed struct {
	endpoint string
	config   WSFeedConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to the subscriber's channel
	subs   map[int64]chan Event
	subsMu sync.RWMutex

	// activeLaunches remembers each subscription's launch for
	// resubscription after reconnect
	activeLaunches   map[int64]string
	activeLaunchesMu sync.RWMutex

	// pendingSubs maps request ID to a channel waiting for the
	// subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSFeed creates a new feed client and connects to the endpoint.
func NewWSFeed(ctx context.Context, endpoint string, config *WSFeedConfig) (*WSFeed, error) {
	cfg := DefaultWSFeedConfig()
	if config != nil {
		cfg = *config
	}

	f := &WSFeed{
		endpoint:       endpoint,
		config:         cfg,
		subs:           make(map[int64]chan Event),
		activeLaunches: make(map[int64]string),
		pendingSubs:    make(map[uint64]chan int64),
		done:           make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// connect establishes the WebSocket connection.
func (f *WSFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// SubscribeLaunch subscribes to activity events for one launch.
func (f *WSFeed) SubscribeLaunch(ctx context.Context, launchID string) (<-chan Event, error) {
	subID, err := f.subscribe(ctx, launchID)
	if err != nil {
		return nil, err
	}

	// Deep buffer absorbs event bursts; delivery blocks rather than drops.
	ch := make(chan Event, 4096)
	f.subsMu.Lock()
	f.subs[subID] = ch
	f.subsMu.Unlock()

	f.activeLaunchesMu.Lock()
	f.activeLaunches[subID] = launchID
	f.activeLaunchesMu.Unlock()

	return ch, nil
}

// subscribe sends a subscribe frame and waits for the confirmation
// carrying the subscription ID.
func (f *WSFeed) subscribe(ctx context.Context, launchID string) (int64, error) {
	if f.closed.Load() {
		return 0, fmt.Errorf("feed closed")
	}

	reqID := f.requestID.Add(1)
	req := wsSubscribeRequest{
		Action:   "subscribe",
		ID:       reqID,
		LaunchID: launchID,
	}

	confirmCh := make(chan int64, 1)
	f.pendingSubsMu.Lock()
	f.pendingSubs[reqID] = confirmCh
	f.pendingSubsMu.Unlock()

	dropPending := func() {
		f.pendingSubsMu.Lock()
		delete(f.pendingSubs, reqID)
		f.pendingSubsMu.Unlock()
	}

	f.connMu.Lock()
	if f.conn == nil {
		f.connMu.Unlock()
		dropPending()
		return 0, fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	err := f.conn.WriteJSON(req)
	f.connMu.Unlock()

	if err != nil {
		dropPending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(f.config.SubscribeTimeout):
		dropPending()
		return 0, fmt.Errorf("subscription timeout after %v", f.config.SubscribeTimeout)
	case <-f.done:
		return 0, fmt.Errorf("feed closed")
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// Close closes the feed connection and every subscriber channel.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil // already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.subsMu.Lock()
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
	f.subsMu.Unlock()

	f.pendingSubsMu.Lock()
	for id, ch := range f.pendingSubs {
		close(ch)
		delete(f.pendingSubs, id)
	}
	f.pendingSubsMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads frames and dispatches them to subscribers.
func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay once reads succeed again.
		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// reconnect re-establishes the connection and resubscribes.
func (f *WSFeed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		// The next read error triggers another attempt.
		return
	}

	f.resubscribeAll()
}

// resubscribeAll renews every active launch subscription after a
// reconnect, rebinding the existing subscriber channels to the new
// subscription IDs.
func (f *WSFeed) resubscribeAll() {
	f.activeLaunchesMu.RLock()
	launches := make(map[int64]string)
	for id, launchID := range f.activeLaunches {
		launches[id] = launchID
	}
	f.activeLaunchesMu.RUnlock()

	f.subsMu.RLock()
	channels := make(map[int64]chan Event)
	for id, ch := range f.subs {
		channels[id] = ch
	}
	f.subsMu.RUnlock()

	for oldSubID, launchID := range launches {
		ch := channels[oldSubID]
		if ch == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), f.config.SubscribeTimeout)
		newSubID, err := f.subscribe(ctx, launchID)
		cancel()

		if err != nil {
			log.Printf("[activity] resubscribe launch %s: %v", launchID, err)
			continue
		}

		f.subsMu.Lock()
		delete(f.subs, oldSubID)
		f.subs[newSubID] = ch
		f.subsMu.Unlock()

		f.activeLaunchesMu.Lock()
		delete(f.activeLaunches, oldSubID)
		f.activeLaunches[newSubID] = launchID
		f.activeLaunchesMu.Unlock()
	}
}

// handleMessage processes one incoming frame.
func (f *WSFeed) handleMessage(message []byte) {
	var frame wsFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return
	}

	switch frame.Type {
	case "subscribed":
		f.handleSubscribed(&frame)
	case "activity":
		f.handleActivity(&frame)
	case "error":
		log.Printf("[activity] feed error: %s", frame.Message)
	}
}

// handleSubscribed resolves the pending request waiting for this
// confirmation.
func (f *WSFeed) handleSubscribed(frame *wsFrame) {
	f.pendingSubsMu.Lock()
	ch, ok := f.pendingSubs[frame.ID]
	if ok {
		delete(f.pendingSubs, frame.ID)
	}
	f.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- frame.Subscription:
		default:
		}
	}
}

// handleActivity dispatches an event to its subscriber.
func (f *WSFeed) handleActivity(frame *wsFrame) {
	if frame.Event == nil {
		return
	}

	f.subsMu.RLock()
	ch, ok := f.subs[frame.Subscription]
	f.subsMu.RUnlock()

	if ok {
		// Block until the subscriber takes the event; never drop.
		select {
		case ch <- *frame.Event:
		case <-f.done:
			return
		}
	}
}

// pingLoop keeps the connection alive with periodic ping frames.
func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				// A failed ping surfaces as a read error, which the
				// reader turns into a reconnect.
				f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}

// Feed wire frames

type wsSubscribeRequest struct {
	Action   string `json:"action"`
	ID       uint64 `json:"id"`
	LaunchID string `json:"launch_id"`
}

type wsFrame struct {
	Type         string `json:"type"`
	ID           uint64 `json:"id,omitempty"`
	Subscription int64  `json:"subscription,omitempty"`
	Event        *Event `json:"event,omitempty"`
	Message      string `json:"message,omitempty"`
}
