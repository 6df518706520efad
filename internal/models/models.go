package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered user in the system.
type User struct {
	gorm.Model
	Username     string `gorm:"size:50;unique;not null" json:"username"`
	Email        string `gorm:"size:100;unique;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	AvatarURL    string `json:"avatarUrl"`
	Bio          string `json:"bio"`
}

// Game is a playable game type. A single "Caro" row is seeded at startup.
type Game struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Name        string    `gorm:"size:100;unique;not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MatchStatus is the lifecycle state of a durable match.
type MatchStatus string

const (
	MatchWaiting   MatchStatus = "waiting"
	MatchPlaying   MatchStatus = "playing"
	MatchFinished  MatchStatus = "finished"
	MatchAbandoned MatchStatus = "abandoned"
)

// Outcome is a player's result in a finished match. Stored as a string
// enum rather than a nullable boolean so that "draw" and "undetermined"
// cannot be confused.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeDraw    Outcome = "draw"
	OutcomePending Outcome = "pending"
)

// Match is one Caro game between two (up to four) players.
type Match struct {
	ID         uint        `gorm:"primarykey" json:"id"`
	GameID     uint        `gorm:"not null;index:ix_matches_game_status" json:"gameId"`
	BoardRows  int         `gorm:"not null;default:15" json:"boardRows"`
	BoardCols  int         `gorm:"not null;default:19" json:"boardCols"`
	WinLen     int         `gorm:"not null;default:5" json:"winLen"`
	Status     MatchStatus `gorm:"size:16;not null;default:waiting;index:ix_matches_game_status" json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	StartedAt  *time.Time  `json:"startedAt"`
	FinishedAt *time.Time  `json:"finishedAt"`

	Players []MatchPlayer `gorm:"constraint:OnDelete:CASCADE" json:"players,omitempty"`
	Moves   []Move        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// MatchPlayer seats one user in one match with an assigned symbol.
// A symbol is held by at most one player per match.
type MatchPlayer struct {
	MatchID  uint      `gorm:"primarykey;autoIncrement:false;uniqueIndex:uq_match_symbol_once" json:"matchId"`
	UserID   uint      `gorm:"primarykey;autoIncrement:false;index:ix_match_players_user" json:"userId"`
	Symbol   string    `gorm:"size:1;not null;uniqueIndex:uq_match_symbol_once" json:"symbol"`
	Outcome  Outcome   `gorm:"size:8;not null;default:pending" json:"outcome"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Move is one accepted move. Rows are append-only and form the replay log
// used for board reconstruction after a reconnect or crash.
type Move struct {
	ID      uint      `gorm:"primarykey" json:"id"`
	MatchID uint      `gorm:"not null;uniqueIndex:uq_cell_once;uniqueIndex:uq_turn_once;index:ix_moves_match_turn" json:"matchId"`
	TurnNo  int       `gorm:"not null;uniqueIndex:uq_turn_once;index:ix_moves_match_turn" json:"turnNo"`
	UserID  uint      `gorm:"not null" json:"userId"`
	X       int       `gorm:"not null;uniqueIndex:uq_cell_once" json:"x"`
	Y       int       `gorm:"not null;uniqueIndex:uq_cell_once" json:"y"`
	Symbol  string    `gorm:"size:1;not null" json:"symbol"`
	MadeAt  time.Time `json:"madeAt"`
}

// UserGameRating is a user's Elo rating and win/loss/draw tally for one game.
type UserGameRating struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex:uq_user_game_rating_once" json:"userId"`
	GameID    uint      `gorm:"not null;uniqueIndex:uq_user_game_rating_once;index:ix_rating_game_rating" json:"gameId"`
	Rating    int       `gorm:"not null;default:1200;index:ix_rating_game_rating" json:"rating"`
	Wins      int       `gorm:"not null;default:0" json:"wins"`
	Losses    int       `gorm:"not null;default:0" json:"losses"`
	Draws     int       `gorm:"not null;default:0" json:"draws"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoomStatus is the lifecycle state of a pre-match lobby room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// Room is a pre-match gathering joinable by a short code.
type Room struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	RoomCode   string     `gorm:"size:6;unique;not null" json:"roomCode"`
	RoomName   string     `gorm:"size:100;not null" json:"roomName"`
	HostID     uint       `gorm:"not null;index:ix_rooms_host" json:"hostId"`
	GameID     uint       `gorm:"not null" json:"gameId"`
	Password   string     `json:"-"` // bcrypt hash, empty when the room is open
	IsPublic   bool       `gorm:"default:true" json:"isPublic"`
	MaxPlayers int        `gorm:"default:2" json:"maxPlayers"`
	BoardRows  int        `gorm:"default:15" json:"boardRows"`
	BoardCols  int        `gorm:"default:19" json:"boardCols"`
	WinLen     int        `gorm:"default:5" json:"winLen"`
	Status     RoomStatus `gorm:"size:16;not null;default:waiting;index:ix_rooms_status" json:"status"`
	MatchID    *uint      `json:"matchId"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`

	Players []RoomPlayer `gorm:"constraint:OnDelete:CASCADE" json:"players,omitempty"`
}

// RoomPlayer is one seat in a lobby room. The host's seat is always ready.
type RoomPlayer struct {
	RoomID   uint      `gorm:"primarykey;autoIncrement:false" json:"roomId"`
	UserID   uint      `gorm:"primarykey;autoIncrement:false;index:ix_room_players_user" json:"userId"`
	IsReady  bool      `gorm:"default:false" json:"isReady"`
	JoinedAt time.Time `json:"joinedAt"`
}
