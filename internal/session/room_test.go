package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ttaflutter/game-plus/internal/board"
	"github.com/ttaflutter/game-plus/internal/models"
	"github.com/ttaflutter/game-plus/internal/store"
	"github.com/ttaflutter/game-plus/internal/testhelpers"
)

// sink collects frames sent to a test client.
type sink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *sink) push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *sink) count(frameType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		if f.Type == frameType {
			n++
		}
	}
	return n
}

func (s *sink) last(frameType string) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Type == frameType {
			return s.frames[i], true
		}
	}
	return Frame{}, false
}

type fixture struct {
	db    *gorm.DB
	store *store.Store
	room  *Room
	alice *models.User
	bob   *models.User
}

func setup(t *testing.T, moveTimeout time.Duration) *fixture {
	t.Helper()

	db := testhelpers.SetupTestDB(t)
	st := store.New(db)
	alice := testhelpers.CreateTestUser(t, db, "alice")
	bob := testhelpers.CreateTestUser(t, db, "bob")
	match := testhelpers.CreateTestMatch(t, db)

	room, err := newRoom(match.ID, st, zap.NewNop(), moveTimeout, nil)
	require.NoError(t, err)
	t.Cleanup(room.stop)
	return &fixture{db: db, store: st, room: room, alice: alice, bob: bob}
}

// attach joins a user through a hook-backed client and returns the client
// and its frame sink.
func attach(t *testing.T, r *Room, userID uint) (*Client, *sink) {
	t.Helper()
	s := &sink{}
	c := newTestClient(userID, s.push)
	require.NoError(t, r.Attach(c))
	return c, s
}

func TestAttachSeatsInOrderAndStarts(t *testing.T) {
	f := setup(t, time.Minute)

	_, sa := attach(t, f.room, f.alice.ID)
	joined, ok := sa.last(TypeJoined)
	require.True(t, ok)
	snap := joined.Data.(JoinedPayload)
	assert.Equal(t, "X", snap.YourSymbol)
	assert.Equal(t, string(models.MatchWaiting), snap.Status)

	_, sb := attach(t, f.room, f.bob.ID)
	joinedB, ok := sb.last(TypeJoined)
	require.True(t, ok)
	assert.Equal(t, "O", joinedB.Data.(JoinedPayload).YourSymbol)

	require.Equal(t, 1, sa.count(TypeStart))
	require.Equal(t, 1, sb.count(TypeStart))
	start, _ := sb.last(TypeStart)
	assert.Equal(t, "X", start.Data.(StartPayload).Turn)

	m, err := f.store.GetMatch(f.room.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchPlaying, m.Status)
	assert.NotNil(t, m.StartedAt)
}

func TestMoveBeforeStartIsRejected(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)

	err := f.room.ApplyMove(f.alice.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestOutOfTurnAndInvalidMoves(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	attach(t, f.room, f.bob.ID)

	assert.ErrorIs(t, f.room.ApplyMove(f.bob.ID, 0, 0), ErrNotYourTurn)
	assert.ErrorIs(t, f.room.ApplyMove(f.alice.ID, -1, 0), board.ErrInvalidCell)
	assert.ErrorIs(t, f.room.ApplyMove(f.alice.ID, 0, 99), board.ErrInvalidCell)

	require.NoError(t, f.room.ApplyMove(f.alice.ID, 0, 0))
	assert.ErrorIs(t, f.room.ApplyMove(f.bob.ID, 0, 0), board.ErrInvalidCell)

	// The rejected attempts did not consume bob's turn.
	require.NoError(t, f.room.ApplyMove(f.bob.ID, 0, 1))
}

func TestHorizontalWinOnStandardBoard(t *testing.T) {
	f := setup(t, time.Minute)
	_, sa := attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	// Alice builds row 7 columns 9 through 13, bob answers on row 8.
	for i := 0; i < 4; i++ {
		require.NoError(t, f.room.ApplyMove(f.alice.ID, 7, 9+i))
		require.NoError(t, f.room.ApplyMove(f.bob.ID, 8, 9+i))
	}
	require.NoError(t, f.room.ApplyMove(f.alice.ID, 7, 13))

	require.Equal(t, 1, sa.count(TypeWin))
	require.Equal(t, 1, sb.count(TypeWin))
	win, _ := sb.last(TypeWin)
	result := win.Data.(ResultPayload)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, f.alice.ID, *result.WinnerID)
	assert.Equal(t, "X", result.WinnerSymbol)
	require.Len(t, result.Line, 5)
	assert.Equal(t, 7, result.Line[0].X)
	assert.Equal(t, 9, result.Line[0].Y)
	assert.Equal(t, 16, result.RatingChanges[f.alice.ID])
	assert.Equal(t, -16, result.RatingChanges[f.bob.ID])

	// Terminal state is sticky.
	assert.ErrorIs(t, f.room.ApplyMove(f.bob.ID, 8, 13), ErrNotPlaying)

	players, err := f.store.LoadMatchPlayers(f.room.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWin, players[0].Outcome)
	assert.Equal(t, models.OutcomeLoss, players[1].Outcome)
}

func TestDrawOnFullBoard(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	st := store.New(db)
	alice := testhelpers.CreateTestUser(t, db, "alice")
	bob := testhelpers.CreateTestUser(t, db, "bob")

	match := &models.Match{GameID: 1, BoardRows: 3, BoardCols: 3, WinLen: 3, Status: models.MatchWaiting}
	require.NoError(t, db.Create(match).Error)

	room, err := newRoom(match.ID, st, zap.NewNop(), time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(room.stop)
	_, sa := attach(t, room, alice.ID)
	attach(t, room, bob.ID)

	// Fills the board with no three in a row for either side.
	moves := []struct {
		user uint
		x, y int
	}{
		{alice.ID, 0, 0}, {bob.ID, 0, 1}, {alice.ID, 0, 2},
		{bob.ID, 1, 1}, {alice.ID, 1, 0}, {bob.ID, 1, 2},
		{alice.ID, 2, 1}, {bob.ID, 2, 0}, {alice.ID, 2, 2},
	}
	for _, mv := range moves {
		require.NoError(t, room.ApplyMove(mv.user, mv.x, mv.y))
	}

	require.Equal(t, 1, sa.count(TypeDraw))
	draw, _ := sa.last(TypeDraw)
	result := draw.Data.(ResultPayload)
	assert.Nil(t, result.WinnerID)
	assert.Equal(t, 0, result.RatingChanges[alice.ID])

	players, err := st.LoadMatchPlayers(match.ID)
	require.NoError(t, err)
	for _, p := range players {
		assert.Equal(t, models.OutcomeDraw, p.Outcome)
	}
}

func TestTurnTimeoutForfeitsExactlyOnce(t *testing.T) {
	f := setup(t, 20*time.Millisecond)
	_, sa := attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	require.Eventually(t, func() bool {
		return sa.count(TypeTimeout) > 0 && sb.count(TypeTimeout) > 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, sa.count(TypeTimeout))
	assert.Equal(t, 1, sb.count(TypeTimeout))

	timeout, _ := sa.last(TypeTimeout)
	result := timeout.Data.(ResultPayload)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, f.bob.ID, *result.WinnerID, "the player on turn forfeits")

	m, err := f.store.GetMatch(f.room.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchFinished, m.Status)
}

func TestMoveCancelsTurnTimer(t *testing.T) {
	f := setup(t, 80*time.Millisecond)
	_, sa := attach(t, f.room, f.alice.ID)
	attach(t, f.room, f.bob.ID)

	// Keep moving faster than the timeout; no forfeit may fire.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, f.room.ApplyMove(f.alice.ID, 0, i))
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, f.room.ApplyMove(f.bob.ID, 1, i))
	}
	assert.Equal(t, 0, sa.count(TypeTimeout))
}

func TestConcurrentSameCellMoveAcceptsExactlyOne(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	attach(t, f.room, f.bob.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.room.ApplyMove(f.alice.ID, 5, 5)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok, "exactly one duplicate send wins")

	moves, err := f.store.LoadMoves(f.room.MatchID)
	require.NoError(t, err)
	assert.Len(t, moves, 1)
}

func TestSurrender(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	require.NoError(t, f.room.Surrender(f.alice.ID))

	frame, ok := sb.last(TypeSurrender)
	require.True(t, ok)
	result := frame.Data.(ResultPayload)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, f.bob.ID, *result.WinnerID)

	assert.ErrorIs(t, f.room.Surrender(f.bob.ID), ErrNotPlaying)
}

func TestDisconnectMidGameForfeits(t *testing.T) {
	f := setup(t, time.Minute)
	ca, _ := attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	f.room.Detach(ca)

	frame, ok := sb.last(TypeDisconnect)
	require.True(t, ok)
	result := frame.Data.(ResultPayload)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, f.bob.ID, *result.WinnerID)

	m, err := f.store.GetMatch(f.room.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchFinished, m.Status)
}

func TestReconnectReplacesOldConnection(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	attach(t, f.room, f.bob.ID)
	require.NoError(t, f.room.ApplyMove(f.alice.ID, 0, 0))

	// A second connection for alice takes over the seat.
	_, sa2 := attach(t, f.room, f.alice.ID)
	joined, ok := sa2.last(TypeJoined)
	require.True(t, ok)
	snap := joined.Data.(JoinedPayload)
	assert.Equal(t, "X", snap.YourSymbol)
	assert.Equal(t, "O", snap.Turn)
	assert.Equal(t, "X", snap.Board[0][0])
	assert.Equal(t, 2, snap.TurnNo)
}

func TestHydrationRebuildsFromMoveLog(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	attach(t, f.room, f.bob.ID)
	require.NoError(t, f.room.ApplyMove(f.alice.ID, 7, 9))
	require.NoError(t, f.room.ApplyMove(f.bob.ID, 8, 9))
	require.NoError(t, f.room.ApplyMove(f.alice.ID, 7, 10))
	f.room.stop()

	// A fresh room from the same durable state, as after a restart.
	revived, err := newRoom(f.room.MatchID, f.store, zap.NewNop(), time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(revived.stop)

	_, s := attach(t, revived, f.bob.ID)
	joined, _ := s.last(TypeJoined)
	snap := joined.Data.(JoinedPayload)
	assert.Equal(t, "O", snap.Turn, "turn derives from the last logged move")
	assert.Equal(t, 4, snap.TurnNo)
	assert.Equal(t, "X", snap.Board[7][9])
	assert.Equal(t, "X", snap.Board[7][10])
	assert.Equal(t, "O", snap.Board[8][9])

	// Replayed cells stay taken.
	assert.ErrorIs(t, revived.ApplyMove(f.bob.ID, 7, 9), board.ErrInvalidCell)
	require.NoError(t, revived.ApplyMove(f.bob.ID, 8, 10))
}

func TestRematchHandshake(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	assert.ErrorIs(t, f.room.RequestRematch(f.alice.ID), ErrNotFinished)

	require.NoError(t, f.room.Surrender(f.alice.ID))
	require.NoError(t, f.room.RequestRematch(f.alice.ID))
	require.Equal(t, 1, sb.count(TypeRematchRequest))

	// The same player asking again does not accept their own request.
	require.NoError(t, f.room.RequestRematch(f.alice.ID))
	require.Equal(t, 0, sb.count(TypeRematchAccepted))

	require.NoError(t, f.room.RequestRematch(f.bob.ID))
	frame, ok := sb.last(TypeRematchAccepted)
	require.True(t, ok)
	next := frame.Data.(RematchAcceptedPayload)

	m, err := f.store.GetMatch(next.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchWaiting, m.Status)

	// The fresh match starts unseated; seats are taken on attach.
	players, err := f.store.LoadMatchPlayers(next.MatchID)
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestRematchCancelledOnRequesterDisconnect(t *testing.T) {
	f := setup(t, time.Minute)
	ca, _ := attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	require.NoError(t, f.room.Surrender(f.alice.ID))
	require.NoError(t, f.room.RequestRematch(f.alice.ID))

	f.room.Detach(ca)
	assert.Equal(t, 1, sb.count(TypeRematchCancelled))
}

func TestChatTruncatesLongMessages(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	long := ""
	for i := 0; i < 40; i++ {
		long += "0123456789"
	}
	require.NoError(t, f.room.Chat(f.alice.ID, long))

	frame, ok := sb.last(TypeChat)
	require.True(t, ok)
	msg := frame.Data.(ChatBroadcast)
	assert.Len(t, []rune(msg.Message), 300)
	assert.Equal(t, "alice", msg.Username)
}

func TestSpectatorWatchesPlayingMatch(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	attach(t, f.room, f.bob.ID)

	// Both seats are taken and the match runs; carol comes in to watch.
	carol := testhelpers.CreateTestUser(t, f.db, "carol")
	_, sc := attach(t, f.room, carol.ID)

	joined, ok := sc.last(TypeJoined)
	require.True(t, ok)
	snap := joined.Data.(JoinedPayload)
	assert.Equal(t, string(models.MatchPlaying), snap.Status)
	assert.Empty(t, snap.YourSymbol, "spectators hold no seat")
	assert.Len(t, snap.Players, 2)

	// Spectators see live moves but may not make them.
	require.NoError(t, f.room.ApplyMove(f.alice.ID, 0, 0))
	assert.Equal(t, 1, sc.count(TypeMove))
	assert.ErrorIs(t, f.room.ApplyMove(carol.ID, 5, 5), ErrNotAPlayer)
	assert.ErrorIs(t, f.room.Surrender(carol.ID), ErrNotAPlayer)

	// No seat on disk was taken for the spectator.
	players, err := f.store.LoadMatchPlayers(f.room.MatchID)
	require.NoError(t, err)
	assert.Len(t, players, 2)
}

func TestSpectatorMayChat(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	carol := testhelpers.CreateTestUser(t, f.db, "carol")
	attach(t, f.room, carol.ID)

	require.NoError(t, f.room.Chat(carol.ID, "nice opening"))
	frame, ok := sb.last(TypeChat)
	require.True(t, ok)
	msg := frame.Data.(ChatBroadcast)
	assert.Equal(t, carol.ID, msg.UserID)
	assert.Equal(t, "carol", msg.Username)
	assert.Equal(t, "nice opening", msg.Message)
}

func TestSpectatorLeaveDoesNotEndMatch(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	carol := testhelpers.CreateTestUser(t, f.db, "carol")
	cc, _ := attach(t, f.room, carol.ID)
	f.room.Detach(cc)

	assert.Equal(t, 0, sb.count(TypeDisconnect))
	assert.Equal(t, 0, sb.count(TypePlayerLeft))
	m, err := f.store.GetMatch(f.room.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchPlaying, m.Status)
}

func TestSpectatorAttachOnFinishedMatch(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	attach(t, f.room, f.bob.ID)
	require.NoError(t, f.room.Surrender(f.alice.ID))

	carol := testhelpers.CreateTestUser(t, f.db, "carol")
	_, sc := attach(t, f.room, carol.ID)

	joined, ok := sc.last(TypeJoined)
	require.True(t, ok)
	assert.Equal(t, string(models.MatchFinished), joined.Data.(JoinedPayload).Status)
	assert.ErrorIs(t, f.room.RequestRematch(carol.ID), ErrNotAPlayer)
}

func TestTurnClockOnWire(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	start, ok := sb.last(TypeStart)
	require.True(t, ok)
	assert.Equal(t, 60.0, start.Data.(StartPayload).TimeLimit)

	require.NoError(t, f.room.ApplyMove(f.alice.ID, 0, 0))
	mv, ok := sb.last(TypeMove)
	require.True(t, ok)
	assert.Equal(t, 60.0, mv.Data.(MoveBroadcast).TimeLimit)

	// A late snapshot reports the remaining window, not the full one.
	time.Sleep(20 * time.Millisecond)
	_, sa2 := attach(t, f.room, f.alice.ID)
	joined, ok := sa2.last(TypeJoined)
	require.True(t, ok)
	snap := joined.Data.(JoinedPayload)
	assert.Equal(t, 60.0, snap.TimeLimit)
	assert.Greater(t, snap.TimeLeft, 0.0)
	assert.Less(t, snap.TimeLeft, 60.0)
}

func TestSnapshotClockIdleBeforeStart(t *testing.T) {
	f := setup(t, time.Minute)
	_, sa := attach(t, f.room, f.alice.ID)

	joined, ok := sa.last(TypeJoined)
	require.True(t, ok)
	snap := joined.Data.(JoinedPayload)
	assert.Equal(t, 0.0, snap.TimeLeft, "no turn clock while waiting")
}

func TestHandleDispatchesFrames(t *testing.T) {
	f := setup(t, time.Minute)
	ca, sa := attach(t, f.room, f.alice.ID)
	_, sb := attach(t, f.room, f.bob.ID)

	f.room.Handle(ca, Frame{Type: TypePing})
	assert.Equal(t, 1, sa.count(TypePong))

	f.room.Handle(ca, Frame{Type: TypeMove, Data: map[string]interface{}{"x": 3, "y": 4}})
	assert.Equal(t, 1, sb.count(TypeMove))

	f.room.Handle(ca, Frame{Type: "bogus"})
	frame, ok := sa.last(TypeError)
	require.True(t, ok)
	assert.Equal(t, CodeBadPayload, frame.Data.(ErrorPayload).Code)
}

func TestHandleReportsMoveErrors(t *testing.T) {
	f := setup(t, time.Minute)
	attach(t, f.room, f.alice.ID)
	cb, sb := attach(t, f.room, f.bob.ID)

	f.room.Handle(cb, Frame{Type: TypeMove, Data: map[string]interface{}{"x": 0, "y": 0}})
	frame, ok := sb.last(TypeError)
	require.True(t, ok)
	assert.Equal(t, CodeNotYourTurn, frame.Data.(ErrorPayload).Code)
}
