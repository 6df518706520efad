package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ttaflutter/game-plus/internal/store"
	"github.com/ttaflutter/game-plus/internal/testhelpers"
)

func TestGetOrCreateReturnsSameRoom(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	st := store.New(db)
	match := testhelpers.CreateTestMatch(t, db)

	reg := NewRegistry(st, zap.NewNop(), time.Minute)
	r1, err := reg.GetOrCreate(match.ID)
	require.NoError(t, err)
	r2, err := reg.GetOrCreate(match.ID)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, reg.Count())
}

func TestGetOrCreateUnknownMatch(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	reg := NewRegistry(store.New(db), zap.NewNop(), time.Minute)

	_, err := reg.GetOrCreate(12345)
	assert.ErrorIs(t, err, store.ErrMatchNotFound)
}

func TestEmptyRoomEvictedAfterGrace(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	st := store.New(db)
	user := testhelpers.CreateTestUser(t, db, "alice")
	match := testhelpers.CreateTestMatch(t, db)

	reg := NewRegistry(st, zap.NewNop(), time.Minute)
	reg.grace = 30 * time.Millisecond

	room, err := reg.GetOrCreate(match.ID)
	require.NoError(t, err)

	c := newTestClient(user.ID, func(Frame) {})
	require.NoError(t, room.Attach(c))
	room.Detach(c)

	require.Eventually(t, func() bool {
		return reg.Count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestReconnectDuringGraceKeepsRoom(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	st := store.New(db)
	user := testhelpers.CreateTestUser(t, db, "alice")
	match := testhelpers.CreateTestMatch(t, db)

	reg := NewRegistry(st, zap.NewNop(), time.Minute)
	reg.grace = 50 * time.Millisecond

	room, err := reg.GetOrCreate(match.ID)
	require.NoError(t, err)

	c1 := newTestClient(user.ID, func(Frame) {})
	require.NoError(t, room.Attach(c1))
	room.Detach(c1)

	// Reconnect inside the grace window.
	c2 := newTestClient(user.ID, func(Frame) {})
	require.NoError(t, room.Attach(c2))

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, reg.Count())

	again, err := reg.GetOrCreate(match.ID)
	require.NoError(t, err)
	assert.Same(t, room, again)
}
