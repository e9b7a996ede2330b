package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Manojseetaram/code-share-clone/internal/apperror"
	"github.com/Manojseetaram/code-share-clone/internal/model"
	"github.com/Manojseetaram/code-share-clone/internal/store"
)

// Registry maps slugs to live Rooms. Concurrent Acquire calls for the same
// slug attach to a single winner; a Room is torn down when its last seat is
// released.
type Registry struct {
	store  *store.Store
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry(st *store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:  st,
		logger: logger,
		rooms:  make(map[string]*Room),
	}
}

// Acquire returns the live Room for slug and a joined Conn whose seat must
// later be released with Room.Leave. Connecting to a slug with no live
// snippet creates an empty one first.
func (reg *Registry) Acquire(ctx context.Context, slug string) (*Room, *Conn, error) {
	reg.mu.Lock()
	r, ok := reg.rooms[slug]
	if ok {
		r.refs++
		reg.mu.Unlock()
	} else {
		reg.mu.Unlock()

		// Seed state outside the lock; loads hit the database.
		snip, err := reg.loadOrCreate(ctx, slug)
		if err != nil {
			return nil, nil, err
		}

		reg.mu.Lock()
		if r, ok = reg.rooms[slug]; ok {
			// Lost the construction race; the winner's seed stands.
			r.refs++
			reg.mu.Unlock()
		} else {
			r = newRoom(slug, snip, reg.store, reg, reg.logger)
			r.refs = 1
			reg.rooms[slug] = r
			reg.mu.Unlock()
			go r.run()
			reg.logger.Info("room opened", slog.String("slug", slug))
		}
	}

	conn := newConn()
	r.join <- conn
	return r, conn, nil
}

func (reg *Registry) loadOrCreate(ctx context.Context, slug string) (*model.Snippet, error) {
	snip, err := reg.store.Get(ctx, slug)
	if err == nil {
		return snip, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	snip, err = reg.store.Create(ctx, slug, "", "", nil)
	if err == nil {
		return snip, nil
	}
	if errors.Is(err, apperror.ErrSlugTaken) {
		// Another connection created it between our read and write.
		return reg.store.Get(ctx, slug)
	}
	return nil, fmt.Errorf("room: seed %s: %w", slug, err)
}

// release gives one seat back. The last seat out closes the room.
func (reg *Registry) release(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r.refs--
	if r.refs > 0 {
		return
	}

	delete(reg.rooms, r.slug)
	close(r.quit)
	reg.logger.Info("room closed", slog.String("slug", r.slug))
}

// RoomCount returns how many rooms are live.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// ConnCount returns the total seats across all rooms.
func (reg *Registry) ConnCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	total := 0
	for _, r := range reg.rooms {
		total += r.refs
	}
	return total
}

// ActiveRooms maps each live slug to its seat count.
func (reg *Registry) ActiveRooms() map[string]int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	active := make(map[string]int, len(reg.rooms))
	for slug, r := range reg.rooms {
		active[slug] = r.refs
	}
	return active
}
