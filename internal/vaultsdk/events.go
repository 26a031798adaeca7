package vaultsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/imroc/req/v3"
)

const (
	eventsPath              = "/api/v1/events"
	eventsBufferSize        = 16
	eventsReconnectDelay    = 1 * time.Second
	eventsMaxReconnectDelay = 8 * time.Second
	eventsReconnectTimeout  = 10 * time.Second
	eventsMaxMessageSize    = 1 * 1024 * 1024
)

// EventType enumerates server-pushed events.
type EventType string

const (
	// EventLockForceReleased fires at the original holder when an admin
	// force-releases their checkout.
	EventLockForceReleased EventType = "lock.force_released"
	// EventRecordUpdated fires when any record in the vault changes.
	EventRecordUpdated EventType = "record.updated"
)

// Event is one message from the server event stream.
type Event struct {
	ID     string      `json:"id"`
	Type   EventType   `json:"type"`
	At     time.Time   `json:"at"`
	Record *FileRecord `json:"record,omitempty"`
}

// EventsAPI maintains the realtime event subscription. The stream is
// server-to-client only; it reconnects with jittered backoff until Close.
type EventsAPI struct {
	client *req.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.RWMutex
	conn             *websocket.Conn
	connected        bool
	reconnectAttempt int

	events chan *Event
}

func newEventsAPI(client *req.Client) *EventsAPI {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventsAPI{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan *Event, eventsBufferSize),
	}
}

// Connect establishes the websocket and starts the read/reconnect loop.
func (e *EventsAPI) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.connected && e.conn != nil {
		return nil
	}

	conn, err := e.dialLocked(ctx)
	if err != nil {
		return fmt.Errorf("sdk: events: connect failed: %w", err)
	}

	go e.manageConnection(conn)
	return nil
}

// IsConnected returns the current connection status.
func (e *EventsAPI) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Get returns the channel events arrive on. Slow consumers drop events
// rather than stalling the socket.
func (e *EventsAPI) Get() <-chan *Event {
	return e.events
}

// Close terminates the connection and stops reconnecting.
func (e *EventsAPI) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancel()

	if e.conn != nil {
		e.conn.Close(websocket.StatusNormalClosure, "shutdown")
		e.conn = nil
	}
	e.connected = false
	slog.Debug("events closed")
}

// dialLocked opens the websocket. Callers hold e.mu.
func (e *EventsAPI) dialLocked(ctx context.Context) (*websocket.Conn, error) {
	if e.conn != nil {
		e.conn.Close(websocket.StatusNormalClosure, "reconnect")
		e.conn = nil
		e.connected = false
	}

	wsURL, err := e.fullURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for k, vs := range e.client.Headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers, // includes the bearer token
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(eventsMaxMessageSize)

	e.conn = conn
	e.connected = true
	slog.Info("events connected")
	return conn, nil
}

// manageConnection reads until the socket drops, then reconnects unless the
// API was closed.
func (e *EventsAPI) manageConnection(conn *websocket.Conn) {
	e.readLoop(conn)

	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
		e.connected = false
	}
	e.mu.Unlock()

	select {
	case <-e.ctx.Done():
		return
	default:
		slog.Info("events disconnected, will reconnect")
		e.reconnectWithBackoff()
	}
}

func (e *EventsAPI) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.Read(e.ctx)
		if err != nil {
			if !isExpectedCloseError(err) {
				slog.Warn("events read", "error", err)
			}
			return
		}

		var event Event
		if err := jsonUnmarshal(raw, &event); err != nil {
			slog.Warn("events decode", "error", err)
			continue
		}

		select {
		case e.events <- &event:
		default:
			slog.Warn("events buffer full, dropped", "id", event.ID, "type", event.Type)
		}
	}
}

func (e *EventsAPI) reconnectWithBackoff() {
	delay := eventsReconnectDelay

	for {
		e.mu.Lock()
		e.reconnectAttempt++
		attempt := e.reconnectAttempt
		e.mu.Unlock()

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(delay):
		}

		slog.Info("events reconnecting", "attempt", attempt, "delay", delay)

		ctx, cancel := context.WithTimeout(e.ctx, eventsReconnectTimeout)
		e.mu.Lock()
		conn, err := e.dialLocked(ctx)
		if err == nil {
			e.reconnectAttempt = 0
		}
		e.mu.Unlock()
		cancel()

		if err == nil {
			go e.manageConnection(conn)
			return
		}

		// jittered exponential backoff
		delay = min(delay*2, eventsMaxReconnectDelay)
		jitterFactor := 0.75 + (rand.Float64() * 0.5)
		delay = time.Duration(float64(delay) * jitterFactor)
	}
}

// fullURL converts the API base URL to the ws:// event endpoint.
func (e *EventsAPI) fullURL() (string, error) {
	joined, err := url.JoinPath(e.client.BaseURL, eventsPath)
	if err != nil {
		return "", fmt.Errorf("join path: %w", err)
	}

	switch {
	case strings.HasPrefix(joined, "https://"):
		joined = "wss://" + strings.TrimPrefix(joined, "https://")
	case strings.HasPrefix(joined, "http://"):
		joined = "ws://" + strings.TrimPrefix(joined, "http://")
	}
	return joined, nil
}

func isExpectedCloseError(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
