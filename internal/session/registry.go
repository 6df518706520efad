package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// evictionGrace is how long an empty room lingers before eviction. A quick
// reconnect within the window keeps the hydrated state.
const evictionGrace = 3 * time.Second

// Registry owns the set of live rooms. Lookups hydrate on demand, so a
// process restart only costs the first client of each match a database
// round trip.
type Registry struct {
	store       Store
	log         *zap.Logger
	moveTimeout time.Duration
	grace       time.Duration

	mu    sync.Mutex
	rooms map[uint]*Room
}

func NewRegistry(st Store, log *zap.Logger, moveTimeout time.Duration) *Registry {
	return &Registry{
		store:       st,
		log:         log,
		moveTimeout: moveTimeout,
		grace:       evictionGrace,
		rooms:       make(map[uint]*Room),
	}
}

// GetOrCreate returns the live room for a match, hydrating it from the
// store on first access.
func (g *Registry) GetOrCreate(matchID uint) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[matchID]; ok {
		return r, nil
	}
	r, err := newRoom(matchID, g.store, g.log, g.moveTimeout, func() {
		g.scheduleEvict(matchID)
	})
	if err != nil {
		return nil, err
	}
	g.rooms[matchID] = r
	g.log.Info("room hydrated", zap.Uint("match_id", matchID))
	return r, nil
}

// Count reports the number of live rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// scheduleEvict arms the grace timer for an empty room. The eviction
// re-checks emptiness under the registry lock, so a reconnect during the
// grace window wins.
func (g *Registry) scheduleEvict(matchID uint) {
	time.AfterFunc(g.grace, func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		r, ok := g.rooms[matchID]
		if !ok || !r.Empty() {
			return
		}
		r.stop()
		delete(g.rooms, matchID)
		g.log.Info("room evicted", zap.Uint("match_id", matchID))
	})
}
