// Package lobby manages pre-match rooms: creation, joining by short code,
// readiness and the handoff that turns a full room into a live match.
package lobby

import (
	"context"
	"errors"
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ttaflutter/game-plus/internal/metrics"
	"github.com/ttaflutter/game-plus/internal/models"
	"github.com/ttaflutter/game-plus/internal/store"
)

var (
	ErrWrongPassword   = errors.New("wrong room password")
	ErrRoomFull        = errors.New("room is full")
	ErrNotHost         = errors.New("only the host can do that")
	ErrRoomNotJoinable = errors.New("room is not joinable")
	ErrInvalidConfig   = errors.New("invalid room configuration")
	ErrNotInRoom       = errors.New("user is not in the room")
	ErrAlreadyJoined   = errors.New("already joined this room")
	ErrHostAlwaysReady = errors.New("host is always ready")
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen      = 6
	codeAttempts = 10

	minBoardDim = 5
	maxBoardDim = 50
	minWinLen   = 3
)

// Manager implements the lobby operations on top of the store, announcing
// every change through the notifier.
type Manager struct {
	store    *store.Store
	notifier *Notifier
	log      *zap.Logger
	gameID   uint
}

func NewManager(st *store.Store, notifier *Notifier, log *zap.Logger, gameID uint) *Manager {
	return &Manager{store: st, notifier: notifier, log: log, gameID: gameID}
}

// CreateRoomInput is the host-supplied room configuration. Zero board
// fields fall back to the standard Caro board.
type CreateRoomInput struct {
	RoomName   string `json:"room_name"`
	Password   string `json:"password"`
	IsPublic   *bool  `json:"is_public"`
	MaxPlayers int    `json:"max_players"`
	BoardRows  int    `json:"board_rows"`
	BoardCols  int    `json:"board_cols"`
	WinLen     int    `json:"win_len"`
}

func (in *CreateRoomInput) normalize() error {
	if in.BoardRows == 0 {
		in.BoardRows = 15
	}
	if in.BoardCols == 0 {
		in.BoardCols = 19
	}
	if in.WinLen == 0 {
		in.WinLen = 5
	}
	if in.MaxPlayers == 0 {
		in.MaxPlayers = 2
	}
	if in.RoomName == "" || len(in.RoomName) > 100 {
		return ErrInvalidConfig
	}
	if in.MaxPlayers < 2 || in.MaxPlayers > 4 {
		return ErrInvalidConfig
	}
	if in.BoardRows < minBoardDim || in.BoardRows > maxBoardDim ||
		in.BoardCols < minBoardDim || in.BoardCols > maxBoardDim {
		return ErrInvalidConfig
	}
	if in.WinLen < minWinLen || in.WinLen > in.BoardRows || in.WinLen > in.BoardCols {
		return ErrInvalidConfig
	}
	return nil
}

// CreateRoom opens a new room with the caller as host.
func (m *Manager) CreateRoom(ctx context.Context, hostID uint, in CreateRoomInput) (*models.Room, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	hash := ""
	if in.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash = string(b)
	}

	code, err := m.freshCode()
	if err != nil {
		return nil, err
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}
	room := &models.Room{
		RoomCode:   code,
		RoomName:   in.RoomName,
		HostID:     hostID,
		GameID:     m.gameID,
		Password:   hash,
		IsPublic:   isPublic,
		MaxPlayers: in.MaxPlayers,
		BoardRows:  in.BoardRows,
		BoardCols:  in.BoardCols,
		WinLen:     in.WinLen,
		Status:     models.RoomWaiting,
	}
	if err := m.store.CreateRoom(room); err != nil {
		return nil, err
	}
	m.notifier.Publish(ctx, "created", room.ID)
	metrics.RoomsOpen.Inc()
	m.log.Info("room created", zap.Uint("room_id", room.ID), zap.String("code", code))
	return room, nil
}

// freshCode draws 6-character codes until one is unused.
func (m *Manager) freshCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		b := make([]byte, codeLen)
		for j := range b {
			b[j] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(b)
		exists, err := m.store.RoomCodeExists(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a room code")
}

// JoinRoom seats a user in a waiting room found by code. A user who
// already holds a seat gets ErrAlreadyJoined rather than a second one.
func (m *Manager) JoinRoom(ctx context.Context, code string, userID uint, password string) (*models.Room, error) {
	room, err := m.store.GetRoomByCode(code)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomWaiting {
		return nil, ErrRoomNotJoinable
	}
	if room.Password != "" {
		if bcrypt.CompareHashAndPassword([]byte(room.Password), []byte(password)) != nil {
			return nil, ErrWrongPassword
		}
	}

	seats, err := m.store.RoomSeats(room.ID)
	if err != nil {
		return nil, err
	}
	for _, seat := range seats {
		if seat.UserID == userID {
			return nil, ErrAlreadyJoined
		}
	}
	if len(seats) >= room.MaxPlayers {
		return nil, ErrRoomFull
	}
	if err := m.store.AddRoomSeat(room.ID, userID); err != nil {
		return nil, err
	}
	m.notifier.Publish(ctx, "updated", room.ID)
	return room, nil
}

// SetReady toggles the caller's readiness flag. The host's flag is pinned
// ready and cannot be toggled. Only waiting rooms accept the toggle.
func (m *Manager) SetReady(ctx context.Context, roomID, userID uint, ready bool) error {
	room, err := m.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomWaiting {
		return store.ErrRoomNotWaiting
	}
	if room.HostID == userID {
		return ErrHostAlwaysReady
	}
	if err := m.store.SetSeatReady(roomID, userID, ready); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			return ErrNotInRoom
		}
		return err
	}
	m.notifier.Publish(ctx, "updated", roomID)
	return nil
}

// Leave removes the caller's seat. The host leaving, or the last player
// leaving, deletes the room. Once the room has started its seats are
// frozen; leaving there would orphan the live match.
func (m *Manager) Leave(ctx context.Context, roomID, userID uint) error {
	room, err := m.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomWaiting {
		return store.ErrRoomNotWaiting
	}

	if room.HostID == userID {
		if err := m.store.DeleteRoom(roomID); err != nil {
			return err
		}
		m.notifier.Publish(ctx, "deleted", roomID)
		metrics.RoomsOpen.Dec()
		m.log.Info("room deleted by host leave", zap.Uint("room_id", roomID))
		return nil
	}

	removed, err := m.store.RemoveRoomSeat(roomID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotInRoom
	}

	n, err := m.store.CountRoomSeats(roomID)
	if err != nil {
		return err
	}
	if n == 0 {
		if err := m.store.DeleteRoom(roomID); err != nil {
			return err
		}
		m.notifier.Publish(ctx, "deleted", roomID)
		metrics.RoomsOpen.Dec()
		return nil
	}
	m.notifier.Publish(ctx, "updated", roomID)
	return nil
}

// Kick removes another player's seat. Host only; the host cannot kick
// themselves.
func (m *Manager) Kick(ctx context.Context, roomID, hostID, targetID uint) error {
	room, err := m.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomWaiting {
		return store.ErrRoomNotWaiting
	}
	if room.HostID != hostID {
		return ErrNotHost
	}
	if targetID == hostID {
		return ErrInvalidConfig
	}
	removed, err := m.store.RemoveRoomSeat(roomID, targetID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotInRoom
	}
	m.notifier.Publish(ctx, "updated", roomID)
	return nil
}

// Start turns a waiting room into a live match. Host only. Symbol
// assignment and the room flip are one store transaction.
func (m *Manager) Start(ctx context.Context, roomID, hostID uint) (*models.Match, error) {
	room, err := m.store.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != hostID {
		return nil, ErrNotHost
	}
	match, err := m.store.StartRoom(roomID)
	if err != nil {
		return nil, err
	}
	m.notifier.Publish(ctx, "started", roomID)
	metrics.RoomsOpen.Dec()
	m.log.Info("room started", zap.Uint("room_id", roomID), zap.Uint("match_id", match.ID))
	return match, nil
}

// Delete removes a room outright. Host only; a room with a live match
// stays until the match is over.
func (m *Manager) Delete(ctx context.Context, roomID, hostID uint) error {
	room, err := m.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.Status == models.RoomPlaying {
		return store.ErrRoomNotWaiting
	}
	if room.HostID != hostID {
		return ErrNotHost
	}
	if err := m.store.DeleteRoom(roomID); err != nil {
		return err
	}
	m.notifier.Publish(ctx, "deleted", roomID)
	metrics.RoomsOpen.Dec()
	return nil
}

// List returns public waiting rooms, consulting the short-lived cache for
// the default first page.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]store.RoomSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	cacheable := offset == 0 && limit == 50
	if cacheable {
		if rooms, ok := m.notifier.CachedList(ctx); ok {
			return rooms, nil
		}
	}
	rooms, err := m.store.ListWaitingRooms(limit, offset)
	if err != nil {
		return nil, err
	}
	if cacheable {
		m.notifier.StoreList(ctx, rooms)
	}
	return rooms, nil
}

// Detail returns one room with its seats.
func (m *Manager) Detail(roomID uint) (*models.Room, []store.RoomSeat, error) {
	room, err := m.store.GetRoom(roomID)
	if err != nil {
		return nil, nil, err
	}
	seats, err := m.store.RoomSeats(roomID)
	if err != nil {
		return nil, nil, err
	}
	return room, seats, nil
}
