package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ttaflutter/game-plus/internal/models"
)

var (
	ErrRoomNotWaiting   = errors.New("room is not waiting")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrPlayersNotReady  = errors.New("players not ready")
)

// matchSymbols are assigned to room players in join order when a match
// starts. The first symbol always moves first.
var matchSymbols = []string{"X", "O", "A", "B"}

// CreateRoom inserts the room and seats the host in one transaction.
// The host's seat is born ready.
func (s *Store) CreateRoom(room *models.Room) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		seat := models.RoomPlayer{
			RoomID:   room.ID,
			UserID:   room.HostID,
			IsReady:  true,
			JoinedAt: time.Now().UTC(),
		}
		return tx.Create(&seat).Error
	})
}

func (s *Store) GetRoom(roomID uint) (*models.Room, error) {
	var r models.Room
	err := s.DB.First(&r, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetRoomByCode(code string) (*models.Room, error) {
	var r models.Room
	err := s.DB.First(&r, "room_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) RoomCodeExists(code string) (bool, error) {
	var n int64
	err := s.DB.Model(&models.Room{}).Where("room_code = ?", code).Count(&n).Error
	return n > 0, err
}

func (s *Store) SaveRoom(room *models.Room) error {
	return s.DB.Save(room).Error
}

// RoomSeat is a lobby seat joined with user display info and rating.
type RoomSeat struct {
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Rating    int       `json:"rating"`
	IsReady   bool      `json:"is_ready"`
	IsHost    bool      `json:"is_host"`
	JoinedAt  time.Time `json:"joined_at"`
}

// RoomSeats returns a room's seats in join order with display info resolved.
func (s *Store) RoomSeats(roomID uint) ([]RoomSeat, error) {
	room, err := s.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		UserID    uint
		Username  string
		AvatarURL string
		Rating    *int
		IsReady   bool
		JoinedAt  time.Time
	}
	err = s.DB.Model(&models.RoomPlayer{}).
		Select("room_players.user_id, users.username, users.avatar_url, user_game_ratings.rating, room_players.is_ready, room_players.joined_at").
		Joins("JOIN users ON users.id = room_players.user_id").
		Joins("LEFT JOIN user_game_ratings ON user_game_ratings.user_id = room_players.user_id AND user_game_ratings.game_id = ?", room.GameID).
		Where("room_players.room_id = ?", roomID).
		Order("room_players.joined_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	seats := make([]RoomSeat, 0, len(rows))
	for _, r := range rows {
		rating := defaultRatingOf(r.Rating)
		seats = append(seats, RoomSeat{
			UserID:    r.UserID,
			Username:  r.Username,
			AvatarURL: r.AvatarURL,
			Rating:    rating,
			IsReady:   r.IsReady,
			IsHost:    r.UserID == room.HostID,
			JoinedAt:  r.JoinedAt,
		})
	}
	return seats, nil
}

func (s *Store) CountRoomSeats(roomID uint) (int64, error) {
	var n int64
	err := s.DB.Model(&models.RoomPlayer{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}

// AddRoomSeat seats a user. The insert is conflict-safe; callers decide
// what holding a seat already means.
func (s *Store) AddRoomSeat(roomID, userID uint) error {
	seat := models.RoomPlayer{
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&seat).Error
}

func (s *Store) SetSeatReady(roomID, userID uint, ready bool) error {
	res := s.DB.Model(&models.RoomPlayer{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("is_ready", ready)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// RemoveRoomSeat unseats a user and reports whether a row was removed.
func (s *Store) RemoveRoomSeat(roomID, userID uint) (bool, error) {
	res := s.DB.Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomPlayer{})
	return res.RowsAffected > 0, res.Error
}

// DeleteRoom removes the room and all of its seats.
func (s *Store) DeleteRoom(roomID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.RoomPlayer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, roomID).Error
	})
}

// RoomSummary is the lobby listing shape.
type RoomSummary struct {
	ID          uint              `json:"id"`
	RoomCode    string            `json:"room_code"`
	RoomName    string            `json:"room_name"`
	HostName    string            `json:"host_name"`
	PlayerCount int               `json:"player_count"`
	MaxPlayers  int               `json:"max_players"`
	HasPassword bool              `json:"has_password"`
	BoardRows   int               `json:"board_rows"`
	BoardCols   int               `json:"board_cols"`
	WinLen      int               `json:"win_len"`
	Status      models.RoomStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ListWaitingRooms returns public waiting rooms newest first.
func (s *Store) ListWaitingRooms(limit, offset int) ([]RoomSummary, error) {
	var rows []struct {
		ID          uint
		RoomCode    string
		RoomName    string
		HostName    string
		PlayerCount int
		MaxPlayers  int
		Password    string
		BoardRows   int
		BoardCols   int
		WinLen      int
		Status      models.RoomStatus
		CreatedAt   time.Time
	}
	err := s.DB.Model(&models.Room{}).
		Select("rooms.id, rooms.room_code, rooms.room_name, users.username AS host_name, COUNT(room_players.user_id) AS player_count, rooms.max_players, rooms.password, rooms.board_rows, rooms.board_cols, rooms.win_len, rooms.status, rooms.created_at").
		Joins("JOIN users ON users.id = rooms.host_id").
		Joins("LEFT JOIN room_players ON room_players.room_id = rooms.id").
		Where("rooms.status = ? AND rooms.is_public = ?", models.RoomWaiting, true).
		Group("rooms.id, users.username").
		Order("rooms.created_at DESC").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]RoomSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, RoomSummary{
			ID:          r.ID,
			RoomCode:    r.RoomCode,
			RoomName:    r.RoomName,
			HostName:    r.HostName,
			PlayerCount: r.PlayerCount,
			MaxPlayers:  r.MaxPlayers,
			HasPassword: r.Password != "",
			BoardRows:   r.BoardRows,
			BoardCols:   r.BoardCols,
			WinLen:      r.WinLen,
			Status:      r.Status,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// StartRoom atomically creates the match for a waiting room, seats every
// room player with a symbol in join order, and flips the room to playing.
// Re-validates inside the transaction so two concurrent starts cannot both
// succeed.
func (s *Store) StartRoom(roomID uint) (*models.Match, error) {
	var match *models.Match
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.First(&room, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if room.Status != models.RoomWaiting {
			return ErrRoomNotWaiting
		}

		var seats []models.RoomPlayer
		if err := tx.Where("room_id = ?", roomID).Order("joined_at ASC").Find(&seats).Error; err != nil {
			return err
		}
		if len(seats) < 2 {
			return ErrNotEnoughPlayers
		}
		for _, seat := range seats {
			if seat.UserID != room.HostID && !seat.IsReady {
				return ErrPlayersNotReady
			}
		}

		match = &models.Match{
			GameID:    room.GameID,
			BoardRows: room.BoardRows,
			BoardCols: room.BoardCols,
			WinLen:    room.WinLen,
			Status:    models.MatchWaiting,
		}
		if err := tx.Create(match).Error; err != nil {
			return err
		}
		for i, seat := range seats {
			mp := models.MatchPlayer{
				MatchID:  match.ID,
				UserID:   seat.UserID,
				Symbol:   matchSymbols[i],
				Outcome:  models.OutcomePending,
				JoinedAt: time.Now().UTC(),
			}
			if err := tx.Create(&mp).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		return tx.Model(&models.Room{}).Where("id = ?", roomID).
			Updates(map[string]any{
				"status":     models.RoomPlaying,
				"match_id":   match.ID,
				"started_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}
