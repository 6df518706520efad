// Package store is the durable persistence layer. Live rooms treat it as
// the source of truth: in-memory state is a cache reconstructible from the
// move log and player rows kept here.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ttaflutter/game-plus/internal/elo"
	"github.com/ttaflutter/game-plus/internal/models"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrRoomNotFound  = errors.New("room not found")
	ErrUserNotFound  = errors.New("user not found")
	// ErrDuplicateMove means the (match, cell) or (match, turn) uniqueness
	// constraint rejected the insert.
	ErrDuplicateMove = errors.New("duplicate move")
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

// AutoMigrate creates the schema and seeds the Caro game row.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.Match{},
		&models.MatchPlayer{},
		&models.Move{},
		&models.UserGameRating{},
		&models.Room{},
		&models.RoomPlayer{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	caro := models.Game{Name: "Caro", Description: "Five in a row on a rectangular grid"}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&caro).Error
}

func (s *Store) GameByName(name string) (*models.Game, error) {
	var g models.Game
	if err := s.DB.First(&g, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateMatch inserts a new match in waiting status.
func (s *Store) CreateMatch(gameID uint, rows, cols, winLen int) (*models.Match, error) {
	m := &models.Match{
		GameID:    gameID,
		BoardRows: rows,
		BoardCols: cols,
		WinLen:    winLen,
		Status:    models.MatchWaiting,
	}
	if err := s.DB.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) GetMatch(matchID uint) (*models.Match, error) {
	var m models.Match
	err := s.DB.First(&m, matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SeatPlayer records a match seat. The insert is idempotent so that two
// near-simultaneous attaches by the same user cannot fail the second one.
func (s *Store) SeatPlayer(matchID, userID uint, symbol string) error {
	mp := models.MatchPlayer{
		MatchID:  matchID,
		UserID:   userID,
		Symbol:   symbol,
		Outcome:  models.OutcomePending,
		JoinedAt: time.Now().UTC(),
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&mp).Error
}

// RecordMove appends one move to the replay log. The uniqueness constraints
// on (match, cell) and (match, turn) are the backstop against double
// application; a violation surfaces as ErrDuplicateMove.
func (s *Store) RecordMove(matchID uint, turnNo int, userID uint, x, y int, symbol string) error {
	mv := models.Move{
		MatchID: matchID,
		TurnNo:  turnNo,
		UserID:  userID,
		X:       x,
		Y:       y,
		Symbol:  symbol,
		MadeAt:  time.Now().UTC(),
	}
	err := s.DB.Create(&mv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateMove
	}
	return err
}

// MarkPlaying flips a waiting match to playing and stamps started_at.
func (s *Store) MarkPlaying(matchID uint) error {
	now := time.Now().UTC()
	return s.DB.Model(&models.Match{}).Where("id = ?", matchID).
		Updates(map[string]any{"status": models.MatchPlaying, "started_at": now}).Error
}

// SeatedPlayer is a match seat joined with the user's public display info
// and current rating, as cached by a live room.
type SeatedPlayer struct {
	UserID    uint           `json:"user_id"`
	Symbol    string         `json:"symbol"`
	Outcome   models.Outcome `json:"-"`
	Username  string         `json:"username"`
	AvatarURL string         `json:"avatar_url"`
	Rating    int            `json:"rating"`
}

// LoadMatchPlayers returns the seats of a match in join order, with display
// info and ratings resolved. Missing rating rows read as the default.
func (s *Store) LoadMatchPlayers(matchID uint) ([]SeatedPlayer, error) {
	match, err := s.GetMatch(matchID)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		UserID    uint
		Symbol    string
		Outcome   models.Outcome
		Username  string
		AvatarURL string
		Rating    *int
	}
	err = s.DB.Model(&models.MatchPlayer{}).
		Select("match_players.user_id, match_players.symbol, match_players.outcome, users.username, users.avatar_url, user_game_ratings.rating").
		Joins("JOIN users ON users.id = match_players.user_id").
		Joins("LEFT JOIN user_game_ratings ON user_game_ratings.user_id = match_players.user_id AND user_game_ratings.game_id = ?", match.GameID).
		Where("match_players.match_id = ?", matchID).
		Order("match_players.joined_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]SeatedPlayer, 0, len(rows))
	for _, r := range rows {
		rating := defaultRatingOf(r.Rating)
		out = append(out, SeatedPlayer{
			UserID:    r.UserID,
			Symbol:    r.Symbol,
			Outcome:   r.Outcome,
			Username:  r.Username,
			AvatarURL: r.AvatarURL,
			Rating:    rating,
		})
	}
	return out, nil
}

// LoadMoves returns a match's move log ordered by turn number.
func (s *Store) LoadMoves(matchID uint) ([]models.Move, error) {
	var moves []models.Move
	err := s.DB.Where("match_id = ?", matchID).Order("turn_no ASC").Find(&moves).Error
	return moves, err
}

// FinishMatch commits a terminal transition as one transaction: match
// status, both players' outcomes, and both players' rating rows. winnerID
// nil means draw. Every terminal path (win, draw, surrender, timeout,
// disconnect) goes through here; there is no side channel for timer
// callbacks. Returns per-user rating deltas.
func (s *Store) FinishMatch(matchID uint, winnerID *uint) (map[uint]int, error) {
	changes := map[uint]int{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var match models.Match
		if err := tx.First(&match, matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMatchNotFound
			}
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Match{}).Where("id = ?", matchID).
			Updates(map[string]any{"status": models.MatchFinished, "finished_at": now}).Error; err != nil {
			return err
		}

		var seats []models.MatchPlayer
		if err := tx.Where("match_id = ?", matchID).Order("joined_at ASC").Find(&seats).Error; err != nil {
			return err
		}

		for _, seat := range seats {
			outcome := models.OutcomeDraw
			if winnerID != nil {
				outcome = models.OutcomeLoss
				if seat.UserID == *winnerID {
					outcome = models.OutcomeWin
				}
			}
			if err := tx.Model(&models.MatchPlayer{}).
				Where("match_id = ? AND user_id = ?", matchID, seat.UserID).
				Update("outcome", outcome).Error; err != nil {
				return err
			}
		}

		// Ratings only apply to the ranked 1v1 shape.
		if len(seats) != 2 {
			return nil
		}

		r1, err := getOrCreateRating(tx, seats[0].UserID, match.GameID)
		if err != nil {
			return err
		}
		r2, err := getOrCreateRating(tx, seats[1].UserID, match.GameID)
		if err != nil {
			return err
		}

		result := elo.Draw
		switch {
		case winnerID != nil && *winnerID == seats[0].UserID:
			result = elo.Player1Wins
			r1.Wins++
			r2.Losses++
		case winnerID != nil && *winnerID == seats[1].UserID:
			result = elo.Player2Wins
			r1.Losses++
			r2.Wins++
		default:
			r1.Draws++
			r2.Draws++
		}

		new1, new2 := elo.Update(r1.Rating, r2.Rating, result)
		changes[seats[0].UserID] = new1 - r1.Rating
		changes[seats[1].UserID] = new2 - r2.Rating
		r1.Rating, r2.Rating = new1, new2

		if err := tx.Save(r1).Error; err != nil {
			return err
		}
		return tx.Save(r2).Error
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func getOrCreateRating(tx *gorm.DB, userID, gameID uint) (*models.UserGameRating, error) {
	var r models.UserGameRating
	err := tx.Where("user_id = ? AND game_id = ?", userID, gameID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r = models.UserGameRating{UserID: userID, GameID: gameID, Rating: elo.DefaultRating}
		if err := tx.Create(&r).Error; err != nil {
			return nil, err
		}
		return &r, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// defaultRatingOf maps a missing rating row to the starting rating.
func defaultRatingOf(r *int) int {
	if r == nil {
		return elo.DefaultRating
	}
	return *r
}

// RatingFor reads a user's rating for a game without creating a row.
func (s *Store) RatingFor(userID, gameID uint) int {
	var r models.UserGameRating
	err := s.DB.Where("user_id = ? AND game_id = ?", userID, gameID).First(&r).Error
	if err != nil {
		return elo.DefaultRating
	}
	return r.Rating
}
