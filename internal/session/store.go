package session

import (
	"github.com/ttaflutter/game-plus/internal/models"
	"github.com/ttaflutter/game-plus/internal/store"
)

// Store is the persistence collaborator a live room depends on. The rooms
// never touch gorm directly; everything durable goes through this surface,
// which keeps the state machine testable against any backing database.
type Store interface {
	GetMatch(matchID uint) (*models.Match, error)
	CreateMatch(gameID uint, rows, cols, winLen int) (*models.Match, error)
	SeatPlayer(matchID, userID uint, symbol string) error
	RecordMove(matchID uint, turnNo int, userID uint, x, y int, symbol string) error
	MarkPlaying(matchID uint) error
	FinishMatch(matchID uint, winnerID *uint) (map[uint]int, error)
	LoadMatchPlayers(matchID uint) ([]store.SeatedPlayer, error)
	LoadMoves(matchID uint) ([]models.Move, error)
	GetUserByID(id uint) (*models.User, error)
	RatingFor(userID, gameID uint) int
}

var _ Store = (*store.Store)(nil)
