package lobby

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ttaflutter/game-plus/internal/store"
)

const (
	// eventsChannel carries lobby change events for list-watching clients.
	eventsChannel = "room_events"
	// listCacheKey holds the serialized public waiting-room list.
	listCacheKey = "rooms:list:waiting"
	listCacheTTL = 5 * time.Second
)

// Event is one lobby change published to subscribers.
type Event struct {
	Kind   string `json:"kind"` // created, updated, started, deleted
	RoomID uint   `json:"room_id"`
}

// Notifier fans lobby changes out over Redis pub/sub and keeps a short
// lived cache of the room list. Redis being down degrades listings to
// database reads; it never fails a lobby operation.
type Notifier struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewNotifier(rdb *redis.Client, log *zap.Logger) *Notifier {
	return &Notifier{rdb: rdb, log: log}
}

// Publish announces a change and drops the stale list cache.
func (n *Notifier) Publish(ctx context.Context, kind string, roomID uint) {
	b, err := json.Marshal(Event{Kind: kind, RoomID: roomID})
	if err != nil {
		return
	}
	if err := n.rdb.Publish(ctx, eventsChannel, b).Err(); err != nil {
		n.log.Warn("lobby event publish failed", zap.Error(err))
	}
	if err := n.rdb.Del(ctx, listCacheKey).Err(); err != nil {
		n.log.Warn("lobby cache invalidation failed", zap.Error(err))
	}
}

// CachedList returns the cached room list, or ok=false on miss or error.
func (n *Notifier) CachedList(ctx context.Context) ([]store.RoomSummary, bool) {
	b, err := n.rdb.Get(ctx, listCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var rooms []store.RoomSummary
	if err := json.Unmarshal(b, &rooms); err != nil {
		return nil, false
	}
	return rooms, true
}

// StoreList caches a freshly built room list.
func (n *Notifier) StoreList(ctx context.Context, rooms []store.RoomSummary) {
	b, err := json.Marshal(rooms)
	if err != nil {
		return
	}
	if err := n.rdb.Set(ctx, listCacheKey, b, listCacheTTL).Err(); err != nil {
		n.log.Warn("lobby cache store failed", zap.Error(err))
	}
}

// Subscribe opens a pub/sub subscription to lobby events.
func (n *Notifier) Subscribe(ctx context.Context) *redis.PubSub {
	return n.rdb.Subscribe(ctx, eventsChannel)
}
