package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ttaflutter/game-plus/internal/board"
	"github.com/ttaflutter/game-plus/internal/metrics"
	"github.com/ttaflutter/game-plus/internal/models"
	"github.com/ttaflutter/game-plus/internal/store"
)

var (
	ErrNotPlaying  = errors.New("match is not in progress")
	ErrNotYourTurn = errors.New("not your turn")
	ErrNotAPlayer  = errors.New("not a seated player")
	ErrMatchFull   = errors.New("match is full")
	ErrNotFinished = errors.New("match is not finished")
)

// seatSymbols are handed out in attach order on matches that were not
// pre-seated by a lobby room.
var seatSymbols = []string{"X", "O", "A", "B"}

// Room is the live state of one match. A single mutex serializes every
// transition: moves, attaches, detaches, timer expiry and rematch traffic
// all take it, so no partial state is ever observable.
type Room struct {
	MatchID uint

	store Store
	log   *zap.Logger

	mu          sync.Mutex
	status      models.MatchStatus
	gameID      uint
	board       *board.Board
	winLen      int
	capacity    int
	players     map[uint]store.SeatedPlayer
	order       []string // symbols in seat order, order[0] moves first
	turn        string
	turnNo      int
	clients     map[uint]*Client
	timer       *time.Timer
	timerGen    int
	moveTimeout time.Duration

	// turnStartedAt is when the current turn's timeout window opened,
	// used to tell late joiners how much time remains.
	turnStartedAt time.Time

	// inconsistent marks that a terminal write failed and the durable
	// record may lag the broadcast state.
	inconsistent bool

	// spectatorNames caches display names for connected users without a
	// seat, for chat relay.
	spectatorNames map[uint]string

	pendingRematch uint
	onEmpty        func()
}

// newRoom hydrates a room from the durable record: match row, seats and
// the full move log replayed onto a fresh board.
func newRoom(matchID uint, st Store, log *zap.Logger, moveTimeout time.Duration, onEmpty func()) (*Room, error) {
	match, err := st.GetMatch(matchID)
	if err != nil {
		return nil, err
	}
	seats, err := st.LoadMatchPlayers(matchID)
	if err != nil {
		return nil, err
	}
	moves, err := st.LoadMoves(matchID)
	if err != nil {
		return nil, err
	}

	b := board.New(match.BoardRows, match.BoardCols)
	for _, mv := range moves {
		if err := b.Place(mv.X, mv.Y, mv.Symbol); err != nil {
			return nil, err
		}
	}

	r := &Room{
		MatchID:     matchID,
		store:       st,
		log:         log.With(zap.Uint("match_id", matchID)),
		status:      match.Status,
		gameID:      match.GameID,
		board:       b,
		winLen:      match.WinLen,
		capacity:    2,
		players:        make(map[uint]store.SeatedPlayer, len(seats)),
		clients:        make(map[uint]*Client),
		spectatorNames: make(map[uint]string),
		turnNo:         len(moves) + 1,
		moveTimeout:    moveTimeout,
		onEmpty:        onEmpty,
	}
	for _, seat := range seats {
		r.players[seat.UserID] = seat
		r.order = append(r.order, seat.Symbol)
	}
	if len(seats) > r.capacity {
		r.capacity = len(seats)
	}
	if len(r.order) > 0 {
		r.turn = r.order[0]
		if len(moves) > 0 {
			last := moves[len(moves)-1].Symbol
			for i, sym := range r.order {
				if sym == last {
					r.turn = r.order[(i+1)%len(r.order)]
					break
				}
			}
		}
	}
	if r.status == models.MatchPlaying {
		// A fresh timeout window after hydration; the old deadline did
		// not survive the process.
		r.scheduleTurnTimerLocked()
	}
	return r, nil
}

// Attach registers a connection. A user already seated reconnects to their
// seat; an unseated user takes a free seat while the match is waiting, and
// otherwise stays as a spectator: read-only, chat allowed, no moves. The
// previous connection of the same user, if any, is closed. The caller
// receives a joined snapshot on success.
func (r *Room) Attach(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.clients[c.UserID]; ok && old != c {
		old.Close(websocket.ClosePolicyViolation, "replaced by a newer connection")
		delete(r.clients, c.UserID)
	}

	if _, seated := r.players[c.UserID]; !seated {
		if r.status == models.MatchWaiting && len(r.players) < r.capacity {
			if err := r.seatLocked(c.UserID); err != nil {
				return err
			}
		} else {
			user, err := r.store.GetUserByID(c.UserID)
			if err != nil {
				return err
			}
			r.spectatorNames[c.UserID] = user.Username
		}
	}

	r.clients[c.UserID] = c
	if err := c.Send(Frame{Type: TypeJoined, Data: r.snapshotLocked(c.UserID)}); err != nil {
		r.log.Warn("snapshot send failed", zap.Uint("user_id", c.UserID), zap.Error(err))
	}

	if r.status == models.MatchWaiting && len(r.players) == r.capacity {
		r.startLocked()
	}
	return nil
}

func (r *Room) seatLocked(userID uint) error {
	symbol := ""
	for _, s := range seatSymbols {
		used := false
		for _, taken := range r.order {
			if taken == s {
				used = true
				break
			}
		}
		if !used {
			symbol = s
			break
		}
	}
	if symbol == "" {
		return ErrMatchFull
	}

	if err := r.store.SeatPlayer(r.MatchID, userID, symbol); err != nil {
		return err
	}
	user, err := r.store.GetUserByID(userID)
	if err != nil {
		return err
	}
	seat := store.SeatedPlayer{
		UserID:    userID,
		Symbol:    symbol,
		Outcome:   models.OutcomePending,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		Rating:    r.store.RatingFor(userID, r.gameID),
	}
	r.players[userID] = seat
	r.order = append(r.order, symbol)
	if len(r.order) == 1 {
		r.turn = symbol
	}
	return nil
}

func (r *Room) startLocked() {
	if err := r.store.MarkPlaying(r.MatchID); err != nil {
		r.log.Error("mark playing failed", zap.Error(err))
		r.inconsistent = true
	}
	r.status = models.MatchPlaying
	r.turn = r.order[0]
	r.turnNo = 1
	r.broadcastLocked(Frame{Type: TypeStart, Data: StartPayload{
		Turn:      r.turn,
		Players:   r.playersLocked(),
		TimeLimit: r.moveTimeout.Seconds(),
	}})
	r.scheduleTurnTimerLocked()
	r.log.Info("match started")
}

// Handle dispatches one inbound frame from a connected client. Protocol
// errors are answered with an error frame on the same connection; they
// never tear the room down.
func (r *Room) Handle(c *Client, f Frame) {
	switch f.Type {
	case TypePing:
		_ = c.Send(Frame{Type: TypePong})
	case TypeMove:
		var p MovePayload
		if err := marshal(f.Data, &p); err != nil {
			_ = c.Send(errFrame(CodeBadPayload, "malformed move"))
			return
		}
		if err := r.ApplyMove(c.UserID, p.X, p.Y); err != nil {
			_ = c.Send(errFrame(CodeFor(err), err.Error()))
		}
	case TypeSurrender:
		if err := r.Surrender(c.UserID); err != nil {
			_ = c.Send(errFrame(CodeFor(err), err.Error()))
		}
	case TypeChat:
		var p ChatPayload
		if err := marshal(f.Data, &p); err != nil {
			_ = c.Send(errFrame(CodeBadPayload, "malformed chat"))
			return
		}
		if err := r.Chat(c.UserID, p.Message); err != nil {
			_ = c.Send(errFrame(CodeFor(err), err.Error()))
		}
	case TypeRematch:
		if err := r.RequestRematch(c.UserID); err != nil {
			_ = c.Send(errFrame(CodeFor(err), err.Error()))
		}
	default:
		_ = c.Send(errFrame(CodeBadPayload, "unknown frame type"))
	}
}

// CodeFor maps a room error to its wire error code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrNotPlaying):
		return CodeNotPlaying
	case errors.Is(err, ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.Is(err, board.ErrInvalidCell), errors.Is(err, store.ErrDuplicateMove):
		return CodeInvalidCell
	case errors.Is(err, ErrNotAPlayer):
		return CodeNotAPlayer
	case errors.Is(err, ErrMatchFull):
		return CodeMatchFull
	case errors.Is(err, ErrNotFinished):
		return CodeNotFinished
	default:
		return CodeInternal
	}
}

// ApplyMove validates and commits one move. The move is durable before any
// client hears about it; a store failure leaves the board untouched.
func (r *Room) ApplyMove(userID uint, x, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != models.MatchPlaying {
		return ErrNotPlaying
	}
	seat, seated := r.players[userID]
	if !seated {
		return ErrNotAPlayer
	}
	if seat.Symbol != r.turn {
		return ErrNotYourTurn
	}
	if r.board.At(x, y) != "" || !r.inBounds(x, y) {
		return board.ErrInvalidCell
	}

	if err := r.store.RecordMove(r.MatchID, r.turnNo, userID, x, y, seat.Symbol); err != nil {
		return err
	}
	if err := r.board.Place(x, y, seat.Symbol); err != nil {
		return err
	}
	turnNo := r.turnNo
	r.turnNo++
	metrics.MovesTotal.Inc()

	if line := r.board.CheckWin(x, y, r.winLen, seat.Symbol); line != nil {
		winner := userID
		r.finishLocked(&winner, TypeWin, line)
		return nil
	}
	if r.board.Full() {
		r.finishLocked(nil, TypeDraw, nil)
		return nil
	}

	r.advanceTurnLocked(seat.Symbol)
	r.broadcastLocked(Frame{Type: TypeMove, Data: MoveBroadcast{
		UserID:    userID,
		Symbol:    seat.Symbol,
		X:         x,
		Y:         y,
		TurnNo:    turnNo,
		NextTurn:  r.turn,
		TimeLimit: r.moveTimeout.Seconds(),
	}})
	r.scheduleTurnTimerLocked()
	return nil
}

func (r *Room) inBounds(x, y int) bool {
	return x >= 0 && x < r.board.Rows() && y >= 0 && y < r.board.Cols()
}

func (r *Room) advanceTurnLocked(after string) {
	for i, sym := range r.order {
		if sym == after {
			r.turn = r.order[(i+1)%len(r.order)]
			return
		}
	}
}

// Surrender forfeits the match to the opponent.
func (r *Room) Surrender(userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != models.MatchPlaying {
		return ErrNotPlaying
	}
	if _, seated := r.players[userID]; !seated {
		return ErrNotAPlayer
	}
	winner, ok := r.opponentLocked(userID)
	if !ok {
		return ErrNotPlaying
	}
	r.finishLocked(&winner, TypeSurrender, nil)
	return nil
}

// opponentLocked returns the other seated player in a two-seat match.
func (r *Room) opponentLocked(userID uint) (uint, bool) {
	if len(r.players) != 2 {
		return 0, false
	}
	for id := range r.players {
		if id != userID {
			return id, true
		}
	}
	return 0, false
}

// Chat relays a message to everyone in the room, truncated to the cap.
// Spectators may chat too; only the board stays out of their reach.
func (r *Room) Chat(userID uint, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := r.spectatorNames[userID]
	if seat, seated := r.players[userID]; seated {
		name = seat.Username
	}
	runes := []rune(msg)
	if len(runes) > maxChatLen {
		msg = string(runes[:maxChatLen])
	}
	r.broadcastLocked(Frame{Type: TypeChat, Data: ChatBroadcast{
		UserID:   userID,
		Username: name,
		Message:  msg,
	}})
	return nil
}

// RequestRematch implements the two-step rematch handshake on a finished
// match. The first request is broadcast; a request from the other player
// while one is pending creates a fresh match with the same board settings
// and no pre-assigned seats.
func (r *Room) RequestRematch(userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != models.MatchFinished {
		return ErrNotFinished
	}
	if _, seated := r.players[userID]; !seated {
		return ErrNotAPlayer
	}

	switch {
	case r.pendingRematch == 0:
		r.pendingRematch = userID
		r.broadcastLocked(Frame{Type: TypeRematchRequest, Data: RematchRequestPayload{UserID: userID}})
	case r.pendingRematch != userID:
		next, err := r.store.CreateMatch(r.gameID, r.board.Rows(), r.board.Cols(), r.winLen)
		if err != nil {
			r.log.Error("rematch create failed", zap.Error(err))
			return err
		}
		r.pendingRematch = 0
		r.broadcastLocked(Frame{Type: TypeRematchAccepted, Data: RematchAcceptedPayload{MatchID: next.ID}})
		r.log.Info("rematch accepted", zap.Uint("next_match_id", next.ID))
	}
	return nil
}

// Detach removes a connection. Mid-game disconnection of a player in a
// two-seat match forfeits to the opponent.
func (r *Room) Detach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.clients[c.UserID]; !ok || cur != c {
		return
	}
	delete(r.clients, c.UserID)
	delete(r.spectatorNames, c.UserID)

	if r.pendingRematch == c.UserID {
		r.pendingRematch = 0
		r.broadcastLocked(Frame{Type: TypeRematchCancelled, Data: RematchRequestPayload{UserID: c.UserID}})
	}

	_, seated := r.players[c.UserID]
	switch {
	case seated && r.status == models.MatchPlaying:
		if winner, ok := r.opponentLocked(c.UserID); ok {
			r.finishLocked(&winner, TypeDisconnect, nil)
		} else {
			r.broadcastLocked(Frame{Type: TypePlayerLeft, Data: PlayerLeftPayload{UserID: c.UserID}})
		}
	case seated:
		r.broadcastLocked(Frame{Type: TypePlayerLeft, Data: PlayerLeftPayload{UserID: c.UserID}})
	}

	if len(r.clients) == 0 && r.onEmpty != nil {
		r.onEmpty()
	}
}

// finishLocked commits a terminal transition. The durable write happens in
// one store transaction; the result broadcast follows it. A store failure
// is logged and flags the room inconsistent but still announces the result,
// because the in-memory outcome is already decided.
func (r *Room) finishLocked(winnerID *uint, frameType string, line []board.Cell) {
	r.stopTimerLocked()
	r.status = models.MatchFinished

	changes, err := r.store.FinishMatch(r.MatchID, winnerID)
	if err != nil {
		r.log.Error("finish persist failed", zap.Error(err))
		r.inconsistent = true
	}

	payload := ResultPayload{WinnerID: winnerID, Line: line, RatingChanges: changes}
	if winnerID != nil {
		if seat, ok := r.players[*winnerID]; ok {
			payload.WinnerSymbol = seat.Symbol
		}
	}
	for id, delta := range changes {
		if seat, ok := r.players[id]; ok {
			seat.Rating += delta
			r.players[id] = seat
		}
	}
	r.broadcastLocked(Frame{Type: frameType, Data: payload})
	metrics.MatchesFinished.WithLabelValues(frameType).Inc()
	r.log.Info("match finished", zap.String("reason", frameType))
}

// scheduleTurnTimerLocked arms the forfeit timer for the current turn. The
// generation counter makes a stale expiry a no-op: any accepted move or
// terminal transition bumps it before the callback can take the lock.
func (r *Room) scheduleTurnTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timerGen++
	gen := r.timerGen
	r.turnStartedAt = time.Now()
	r.timer = time.AfterFunc(r.moveTimeout, func() { r.expireTurn(gen) })
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}

func (r *Room) expireTurn(gen int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.timerGen || r.status != models.MatchPlaying {
		return
	}
	var loser uint
	for id, seat := range r.players {
		if seat.Symbol == r.turn {
			loser = id
			break
		}
	}
	if winner, ok := r.opponentLocked(loser); ok {
		r.finishLocked(&winner, TypeTimeout, nil)
		return
	}
	r.finishLocked(nil, TypeTimeout, nil)
}

func (r *Room) broadcastLocked(f Frame) {
	for id, c := range r.clients {
		if err := c.Send(f); err != nil {
			r.log.Warn("broadcast send failed", zap.Uint("user_id", id), zap.Error(err))
		}
	}
}

func (r *Room) playersLocked() []PlayerInfo {
	out := make([]PlayerInfo, 0, len(r.players))
	for _, sym := range r.order {
		for id, seat := range r.players {
			if seat.Symbol != sym {
				continue
			}
			_, online := r.clients[id]
			out = append(out, PlayerInfo{
				UserID:    seat.UserID,
				Username:  seat.Username,
				AvatarURL: seat.AvatarURL,
				Rating:    seat.Rating,
				Symbol:    seat.Symbol,
				Online:    online,
			})
		}
	}
	return out
}

func (r *Room) snapshotLocked(userID uint) JoinedPayload {
	yours := ""
	if seat, ok := r.players[userID]; ok {
		yours = seat.Symbol
	}
	timeLeft := 0.0
	if r.status == models.MatchPlaying {
		timeLeft = (r.moveTimeout - time.Since(r.turnStartedAt)).Seconds()
		if timeLeft < 0 {
			timeLeft = 0
		}
	}
	return JoinedPayload{
		MatchID:    r.MatchID,
		Status:     string(r.status),
		Rows:       r.board.Rows(),
		Cols:       r.board.Cols(),
		WinLen:     r.winLen,
		Board:      r.board.Grid(),
		Turn:       r.turn,
		TurnNo:     r.turnNo,
		Players:    r.playersLocked(),
		YourSymbol: yours,
		TimeLimit:  r.moveTimeout.Seconds(),
		TimeLeft:   timeLeft,
	}
}

// Empty reports whether no connections remain.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients) == 0
}

// Finished reports whether the match reached a terminal state.
func (r *Room) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == models.MatchFinished
}

// stop releases the turn timer when the registry evicts the room.
func (r *Room) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
}
