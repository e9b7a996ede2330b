// Package room holds the live synchronization core: one Room per slug,
// each applying mutations strictly one at a time and fanning results out
// to every other connection.
package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Manojseetaram/code-share-clone/internal/model"
	"github.com/Manojseetaram/code-share-clone/internal/protocol"
	"github.com/Manojseetaram/code-share-clone/internal/store"
)

// sendBuffer is the per-connection outbound queue. A connection that lets
// it fill is dropped as an implicit leave.
const sendBuffer = 512

// Conn is one socket's seat in a Room. The Room owns the send channel and
// is the only closer.
type Conn struct {
	ID       string
	JoinedAt time.Time
	LastSeen time.Time

	send chan []byte
}

func newConn() *Conn {
	now := time.Now()
	return &Conn{
		ID:       uuid.NewString(),
		JoinedAt: now,
		LastSeen: now,
		send:     make(chan []byte, sendBuffer),
	}
}

// Send is drained by the connection's write pump. It is closed by the Room
// when the connection leaves or falls behind.
func (c *Conn) Send() <-chan []byte {
	return c.send
}

type inboundMsg struct {
	from *Conn
	msg  protocol.Inbound
}

// Room mirrors one snippet's state and serializes every mutation through
// its own goroutine. Nothing else writes content, language, or images.
type Room struct {
	slug string

	store    *store.Store
	registry *Registry
	logger   *slog.Logger

	content  string
	language string
	images   []model.Image

	conns map[*Conn]bool

	join    chan *Conn
	leave   chan *Conn
	inbound chan inboundMsg
	quit    chan struct{}

	// refs counts seats handed out by the registry and is guarded by the
	// registry's mutex, never touched from the room goroutine directly.
	refs int
}

func newRoom(slug string, snip *model.Snippet, st *store.Store, reg *Registry, logger *slog.Logger) *Room {
	return &Room{
		slug:     slug,
		store:    st,
		registry: reg,
		logger:   logger,
		content:  snip.Content,
		language: snip.Language,
		images:   model.CloneImages(snip.Images),
		conns:    make(map[*Conn]bool),
		join:     make(chan *Conn),
		leave:    make(chan *Conn),
		inbound:  make(chan inboundMsg),
		quit:     make(chan struct{}),
	}
}

func (r *Room) Slug() string {
	return r.slug
}

// Leave removes conn from the room and gives its seat back. Each acquired
// seat must be released by exactly one Leave call; the read pump's exit
// path is that call.
func (r *Room) Leave(conn *Conn) {
	r.leave <- conn
}

// Submit hands an inbound message to the room's serialized apply path.
func (r *Room) Submit(from *Conn, msg protocol.Inbound) {
	r.inbound <- inboundMsg{from: from, msg: msg}
}

func (r *Room) run() {
	for {
		select {
		case c := <-r.join:
			r.handleJoin(c)

		case c := <-r.leave:
			r.handleLeave(c)

		case m := <-r.inbound:
			// A message can race its sender's eviction; drop it once the
			// seat is gone.
			if !r.conns[m.from] {
				continue
			}
			m.from.LastSeen = time.Now()
			r.apply(m)

		case <-r.quit:
			return
		}
	}
}

func (r *Room) handleJoin(c *Conn) {
	r.conns[c] = true
	r.logger.Info("connection joined",
		slog.String("slug", r.slug), slog.String("conn", c.ID), slog.Int("viewers", len(r.conns)))

	if data, err := protocol.Encode(protocol.NewConnected(r.slug, len(r.conns))); err == nil {
		r.deliver(c, data)
	}
	r.broadcastExcept(c, protocol.NewViewers(len(r.conns)))
}

func (r *Room) handleLeave(c *Conn) {
	if r.conns[c] {
		delete(r.conns, c)
		close(c.send)
		r.logger.Info("connection left",
			slog.String("slug", r.slug), slog.String("conn", c.ID), slog.Int("viewers", len(r.conns)))
		r.broadcastExcept(nil, protocol.NewViewers(len(r.conns)))
	}
	r.registry.release(r)
}

func (r *Room) apply(m inboundMsg) {
	switch msg := m.msg.(type) {
	case *protocol.Edit:
		// Wholesale replace: the last edit processed wins. Competing edits
		// inside one propagation window are overwritten, not merged.
		r.content = msg.Content
		r.language = msg.Language
		if err := r.store.UpdateDocument(context.Background(), r.slug, r.content, r.language); err != nil {
			r.logger.Warn("write-through failed",
				slog.String("slug", r.slug), slog.String("error", err.Error()))
		}
		r.broadcastExcept(m.from, protocol.NewBroadcastEdit(msg.Content, msg.Language))

	case *protocol.AddImage:
		for _, img := range r.images {
			if img.ID == msg.Image.ID {
				return
			}
		}
		r.images = append(r.images, msg.Image)
		r.persistImages()
		r.broadcastExcept(m.from, protocol.NewBroadcastImage(msg.Image))

	case *protocol.RemoveImage:
		kept := r.images[:0]
		removed := false
		for _, img := range r.images {
			if img.ID == msg.ID {
				removed = true
				continue
			}
			kept = append(kept, img)
		}
		if !removed {
			return
		}
		r.images = kept
		r.persistImages()
		r.broadcastExcept(m.from, protocol.NewBroadcastRemoveImage(msg.ID))
	}
}

func (r *Room) persistImages() {
	if err := r.store.UpdateImages(context.Background(), r.slug, model.CloneImages(r.images)); err != nil {
		r.logger.Warn("write-through failed",
			slog.String("slug", r.slug), slog.String("error", err.Error()))
	}
}

func (r *Room) broadcastExcept(sender *Conn, msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error("encode broadcast", slog.String("error", err.Error()))
		return
	}

	var evicted []*Conn
	for c := range r.conns {
		if c == sender {
			continue
		}
		select {
		case c.send <- data:
		default:
			evicted = append(evicted, c)
		}
	}
	r.dropSlow(evicted)
}

func (r *Room) deliver(c *Conn, data []byte) {
	select {
	case c.send <- data:
	default:
		r.dropSlow([]*Conn{c})
	}
}

// dropSlow removes connections whose buffers are full, treating each as an
// implicit leave. Removal changes the viewer count, so the remainder gets
// a viewers update, which can itself surface more full buffers.
func (r *Room) dropSlow(evicted []*Conn) {
	for len(evicted) > 0 {
		for _, c := range evicted {
			delete(r.conns, c)
			close(c.send)
			r.logger.Warn("dropping slow connection",
				slog.String("slug", r.slug), slog.String("conn", c.ID))
		}

		data, err := protocol.Encode(protocol.NewViewers(len(r.conns)))
		if err != nil {
			return
		}
		evicted = evicted[:0]
		for c := range r.conns {
			select {
			case c.send <- data:
			default:
				evicted = append(evicted, c)
			}
		}
	}
}
