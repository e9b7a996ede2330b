package client

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Manojseetaram/code-share-clone/internal/model"
	"github.com/Manojseetaram/code-share-clone/internal/protocol"
)

const (
	DefaultDebounce   = 300 * time.Millisecond
	DefaultRetryDelay = 3 * time.Second

	sessionWriteWait = 10 * time.Second
	eventBuffer      = 64
	outboundBuffer   = 32
)

// ErrSessionClosed is returned by operations on a session after Close.
var ErrSessionClosed = errors.New("client: session closed")

// State is the session's connection lifecycle phase.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateRetryWait
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetryWait:
		return "retry-wait"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Origin tags a content event with who produced it, so an application
// applying events never mistakes the echo of its own change for a peer's.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

type EventKind int

const (
	EventState EventKind = iota
	EventConnected
	EventEdit
	EventImageAdded
	EventImageRemoved
	EventViewers
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventConnected:
		return "connected"
	case EventEdit:
		return "edit"
	case EventImageAdded:
		return "image_added"
	case EventImageRemoved:
		return "image_removed"
	case EventViewers:
		return "viewers"
	}
	return "unknown"
}

// Event is one entry in the session's notification stream. Which fields
// are set depends on Kind; Origin is meaningful for the content kinds.
type Event struct {
	Kind     EventKind
	Origin   Origin
	State    State
	Slug     string
	Viewers  int
	Content  string
	Language string
	Image    model.Image
	ImageID  string
}

type docUpdate struct {
	content  string
	language string
}

type SessionConfig struct {
	URL        string // full ws:// URL including the slug path
	Debounce   time.Duration
	RetryDelay time.Duration
	Logger     *slog.Logger
	Dialer     *websocket.Dialer
}

// Session keeps one live editing connection, reconnecting on transport
// failures until Close. A single goroutine owns the socket and all timers.
type Session struct {
	cfg SessionConfig

	kick    chan struct{} // pending document changed
	send    chan protocol.Inbound
	closeCh chan struct{}
	done    chan struct{}
	events  chan Event

	closeOnce sync.Once

	mu      sync.Mutex
	state   State
	viewers int
	doc     docUpdate
	pending *docUpdate
	images  []model.Image
}

// NewSession starts the connection loop immediately.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	s := &Session{
		cfg:     cfg,
		kick:    make(chan struct{}, 1),
		send:    make(chan protocol.Inbound, outboundBuffer),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		events:  make(chan Event, eventBuffer),
		state:   StateConnecting,
	}
	go s.run()
	return s
}

// Events is the session's notification stream. It closes when the session
// does. A receiver that falls behind loses events rather than stalling the
// connection.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Close tears the session down and waits for the loop to exit. A pending
// reconnect wait is cancelled. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
	<-s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewers
}

// Document returns the last known content and language, local or remote.
func (s *Session) Document() (content, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.content, s.doc.language
}

func (s *Session) Images() []model.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneImages(s.images)
}

// SetDocument replaces the local document. Rapid calls coalesce: only the
// state standing at the end of a quiet period is written to the wire, as
// one full-content edit. Never blocks.
func (s *Session) SetDocument(content, language string) {
	u := docUpdate{content: content, language: language}

	s.mu.Lock()
	s.doc = u
	s.pending = &u
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// AddImage sends immediately, without debouncing. During an outage the
// message queues and goes out after reconnect.
func (s *Session) AddImage(img model.Image) error {
	select {
	case s.send <- protocol.NewAddImage(img):
		return nil
	case <-s.closeCh:
		return ErrSessionClosed
	}
}

func (s *Session) RemoveImage(id string) error {
	select {
	case s.send <- protocol.NewRemoveImage(id):
		return nil
	case <-s.closeCh:
		return ErrSessionClosed
	}
}

func (s *Session) run() {
	defer close(s.done)

	for {
		if s.closed() {
			break
		}

		s.setState(StateConnecting)
		conn, err := s.dial()
		if err != nil {
			s.cfg.Logger.Warn("dial failed",
				slog.String("url", s.cfg.URL), slog.String("error", err.Error()))
		} else {
			s.setState(StateOpen)
			s.runOpen(conn)
			conn.Close()
		}

		if s.closed() {
			break
		}

		s.setState(StateRetryWait)
		if !s.sleepRetry() {
			break
		}
	}

	s.setState(StateClosed)
	close(s.events)
}

func (s *Session) closed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *Session) dial() (*websocket.Conn, error) {
	conn, resp, err := s.cfg.Dialer.Dial(s.cfg.URL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	return conn, err
}

// sleepRetry waits the fixed retry delay. Returns false when the session
// closed during the wait.
func (s *Session) sleepRetry() bool {
	timer := time.NewTimer(s.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.closeCh:
		return false
	}
}

// runOpen drives one live connection until it breaks or the session closes.
func (s *Session) runOpen(conn *websocket.Conn) {
	incoming := make(chan []byte)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case readErr <- err:
				case <-quit:
				}
				return
			}
			select {
			case incoming <- data:
			case <-quit:
				return
			}
		}
	}()

	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	// An edit left pending by the previous connection flushes after a
	// fresh quiet period.
	if s.hasPending() {
		debounce = time.NewTimer(s.cfg.Debounce)
		debounceC = debounce.C
	}

	for {
		select {
		case <-s.closeCh:
			conn.SetWriteDeadline(time.Now().Add(sessionWriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case err := <-readErr:
			s.cfg.Logger.Warn("connection lost", slog.String("error", err.Error()))
			return

		case data := <-incoming:
			s.handleIncoming(data)

		case <-s.kick:
			if debounce == nil {
				debounce = time.NewTimer(s.cfg.Debounce)
				debounceC = debounce.C
				break
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(s.cfg.Debounce)

		case <-debounceC:
			debounce = nil
			debounceC = nil
			if err := s.flushPending(conn); err != nil {
				s.cfg.Logger.Warn("write failed", slog.String("error", err.Error()))
				return
			}

		case m := <-s.send:
			if err := s.writeOut(conn, m); err != nil {
				s.cfg.Logger.Warn("write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Session) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// flushPending writes the coalesced edit. On failure the edit is restored
// so the next connection retries it.
func (s *Session) flushPending(conn *websocket.Conn) error {
	s.mu.Lock()
	u := s.pending
	s.pending = nil
	s.mu.Unlock()

	if u == nil {
		return nil
	}

	if err := s.write(conn, protocol.NewEdit(u.content, u.language)); err != nil {
		s.mu.Lock()
		if s.pending == nil {
			s.pending = u
		}
		s.mu.Unlock()
		return err
	}

	s.emit(Event{Kind: EventEdit, Origin: OriginLocal, Content: u.content, Language: u.language})
	return nil
}

func (s *Session) writeOut(conn *websocket.Conn, m protocol.Inbound) error {
	if err := s.write(conn, m); err != nil {
		return err
	}

	switch msg := m.(type) {
	case *protocol.AddImage:
		s.applyImageAdd(msg.Image, OriginLocal)
	case *protocol.RemoveImage:
		s.applyImageRemove(msg.ID, OriginLocal)
	}
	return nil
}

func (s *Session) write(conn *websocket.Conn, m protocol.Inbound) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(sessionWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) handleIncoming(data []byte) {
	msg, err := protocol.DecodeOutbound(data)
	if err != nil {
		s.cfg.Logger.Warn("discarding malformed message", slog.String("error", err.Error()))
		return
	}
	if msg == nil {
		return
	}

	switch m := msg.(type) {
	case *protocol.Connected:
		s.mu.Lock()
		s.viewers = m.Viewers
		s.mu.Unlock()
		s.emit(Event{Kind: EventConnected, Slug: m.Slug, Viewers: m.Viewers})

	case *protocol.Viewers:
		s.mu.Lock()
		s.viewers = m.Count
		s.mu.Unlock()
		s.emit(Event{Kind: EventViewers, Viewers: m.Count})

	case *protocol.BroadcastEdit:
		// Remote state lands directly; it never re-enters the debouncer,
		// so an apply cannot echo back out as a fresh edit.
		s.mu.Lock()
		s.doc = docUpdate{content: m.Content, language: m.Language}
		s.mu.Unlock()
		s.emit(Event{Kind: EventEdit, Origin: OriginRemote, Content: m.Content, Language: m.Language})

	case *protocol.BroadcastImage:
		s.applyImageAdd(m.Image, OriginRemote)

	case *protocol.BroadcastRemoveImage:
		s.applyImageRemove(m.ID, OriginRemote)
	}
}

func (s *Session) applyImageAdd(img model.Image, origin Origin) {
	s.mu.Lock()
	for _, existing := range s.images {
		if existing.ID == img.ID {
			s.mu.Unlock()
			return
		}
	}
	s.images = append(s.images, img)
	s.mu.Unlock()

	s.emit(Event{Kind: EventImageAdded, Origin: origin, Image: img})
}

func (s *Session) applyImageRemove(id string, origin Origin) {
	s.mu.Lock()
	kept := s.images[:0]
	removed := false
	for _, img := range s.images {
		if img.ID == id {
			removed = true
			continue
		}
		kept = append(kept, img)
	}
	s.images = kept
	s.mu.Unlock()

	if removed {
		s.emit(Event{Kind: EventImageRemoved, Origin: origin, ImageID: id})
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if next == StateClosed {
		// The events channel is about to close; deliver the final state
		// only to accessors.
		return
	}
	s.emit(Event{Kind: EventState, State: next})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.cfg.Logger.Warn("dropping event, receiver not keeping up",
			slog.String("kind", ev.Kind.String()))
	}
}
