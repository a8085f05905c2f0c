package eventclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ErrSessionClosed is returned by session calls made after Close.
var ErrSessionClosed = errors.New("eventclient: session closed")

// ErrServerClosed is reported by Err when the server ended the realtime
// connection with a normal or going-away close frame.
var ErrServerClosed = errors.New("eventclient: server closed the connection")

const closeGrace = time.Second

// Config configures a Session.
type Config struct {
	// ServerURL is the http(s) base URL of the API server.
	ServerURL string
	// Token is an optional bearer token for create/join/leave.
	Token string
	// Filter applies to the initial fetch and to pushed new events.
	Filter Filter

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Session ties an API client, a Store and a live websocket subscription
// together. Open starts it; Close, or cancelling the context passed to Open,
// ends it and releases the connection.
type Session struct {
	api    *API
	store  *Store
	filter Filter
	conn   *websocket.Conn
	logger *slog.Logger

	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	closed    chan struct{}
	closeOnce sync.Once
}

// Open fetches the event list, connects to the realtime endpoint and starts
// applying pushes to the store.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	api, err := NewAPI(cfg.ServerURL, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}
	api.SetToken(cfg.Token)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	// Connect before the fetch so no push committed after the list was
	// read can be missed.
	conn, resp, err := dialer.DialContext(ctx, api.WebSocketURL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	events, err := api.ListEvents(ctx, cfg.Filter)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	store := NewStore()
	store.ReplaceAll(events)

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		api:    api,
		store:  store,
		filter: cfg.Filter,
		conn:   conn,
		logger: logger.With("component", "eventclient"),
		cancel: cancel,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(runCtx)
	s.runCtx = gctx
	g.Go(func() error {
		// Whatever ends the reader ends the session.
		defer cancel()
		return s.readLoop()
	})
	g.Go(func() error {
		<-gctx.Done()
		s.sendClose()
		return conn.Close()
	})

	go func() {
		s.err = g.Wait()
		close(s.done)
	}()

	return s, nil
}

// Store returns the session's store.
func (s *Session) Store() *Store { return s.store }

// API returns the underlying HTTP client.
func (s *Session) API() *API { return s.api }

// Events is shorthand for Store().Events().
func (s *Session) Events() []Event { return s.store.Events() }

// JoinedEventID is shorthand for Store().JoinedEventID().
func (s *Session) JoinedEventID() string { return s.store.JoinedEventID() }

// Subscribe is shorthand for Store().Subscribe().
func (s *Session) Subscribe() (<-chan Change, func()) { return s.store.Subscribe() }

// Done is closed once the realtime connection has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the connection ended: nil for a local close or context
// cancellation, ErrServerClosed for a clean close by the server, otherwise
// the read error. It is only meaningful after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	if errors.Is(s.err, context.Canceled) || errors.Is(s.err, net.ErrClosed) {
		return nil
	}
	return s.err
}

// Refresh re-fetches the list and replaces the store contents.
func (s *Session) Refresh(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	events, err := s.api.ListEvents(ctx, s.filter)
	if err != nil {
		return err
	}
	s.store.ReplaceAll(events)
	return nil
}

// CreateEvent creates an event and adds it to the store.
func (s *Session) CreateEvent(ctx context.Context, req CreateEventRequest) (*Event, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	event, err := s.api.CreateEvent(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.filter.Matches(*event) {
		s.store.ApplyNewEvent(*event)
	}
	return event, nil
}

// Join joins eventID and records it as the local user's event.
func (s *Session) Join(ctx context.Context, eventID string) (*Event, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	event, err := s.api.Join(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.store.ApplyJoinResult(*event)
	return event, nil
}

// Leave leaves eventID and clears the local joined id.
func (s *Session) Leave(ctx context.Context, eventID string) (*Event, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	event, err := s.api.Leave(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.store.ApplyLeaveResult(*event)
	return event, nil
}

// Close ends the subscription and waits for the reader to exit. It is safe
// to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	<-s.done
	return s.Err()
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

// sendClose tells the server we are going away. Only the closer goroutine
// writes to the connection.
func (s *Session) sendClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
}

type envelope struct {
	Type    string          `json:"type"`
	EventID string          `json:"eventId"`
	Version int64           `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

type eventUpdatedPayload struct {
	EventID   string `json:"eventId"`
	Attendees []User `json:"attendees"`
	Version   int64  `json:"version"`
}

type newEventPayload struct {
	Event Event `json:"event"`
}

func (s *Session) readLoop() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() || s.runCtx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrServerClosed
			}
			return fmt.Errorf("read realtime message: %w", err)
		}
		s.handle(data)
	}
}

func (s *Session) handle(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("discarding malformed message", "error", err)
		return
	}

	switch env.Type {
	case "eventUpdated":
		var p eventUpdatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.logger.Warn("discarding malformed eventUpdated", "error", err)
			return
		}
		if p.EventID == "" {
			p.EventID = env.EventID
		}
		s.store.ApplyEventUpdated(p.EventID, p.Attendees, p.Version)

	case "newEvent":
		var p newEventPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.logger.Warn("discarding malformed newEvent", "error", err)
			return
		}
		if s.filter.Matches(p.Event) {
			s.store.ApplyNewEvent(p.Event)
		}

	default:
		s.logger.Debug("ignoring message", "type", env.Type)
	}
}

var _ io.Closer = (*Session)(nil)
