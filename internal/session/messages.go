package session

import (
	"encoding/json"

	"github.com/ttaflutter/game-plus/internal/board"
)

// Frame is the envelope for every WebSocket message in both directions.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound frame types.
const (
	TypeMove      = "move"
	TypeSurrender = "surrender"
	TypeChat      = "chat"
	TypePing      = "ping"
	TypeRematch   = "rematch"
)

// Outbound frame types.
const (
	TypeJoined           = "joined"
	TypeStart            = "start"
	TypeWin              = "win"
	TypeDraw             = "draw"
	TypeTimeout          = "timeout"
	TypeDisconnect       = "disconnect"
	TypePlayerLeft       = "player_left"
	TypeRematchRequest   = "rematch_request"
	TypeRematchAccepted  = "rematch_accepted"
	TypeRematchCancelled = "rematch_cancelled"
	TypePong             = "pong"
	TypeError            = "error"
)

// Error codes carried in error frames.
const (
	CodeNotPlaying  = "not_playing"
	CodeNotYourTurn = "not_your_turn"
	CodeInvalidCell = "invalid_cell"
	CodeNotAPlayer  = "not_a_player"
	CodeMatchFull   = "match_full"
	CodeNotFinished = "not_finished"
	CodeBadPayload  = "bad_payload"
	CodeInternal    = "internal"
)

// maxChatLen is the rune limit applied to chat messages before broadcast.
const maxChatLen = 300

type MovePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ChatPayload struct {
	Message string `json:"message"`
}

// PlayerInfo is one seat as shown to clients.
type PlayerInfo struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Rating    int    `json:"rating"`
	Symbol    string `json:"symbol"`
	Online    bool   `json:"online"`
}

// JoinedPayload is the full snapshot sent to a client right after attach.
// It is everything needed to render the match with no prior state.
type JoinedPayload struct {
	MatchID    uint         `json:"match_id"`
	Status     string       `json:"status"`
	Rows       int          `json:"rows"`
	Cols       int          `json:"cols"`
	WinLen     int          `json:"win_len"`
	Board      [][]string   `json:"board"`
	Turn       string       `json:"turn"`
	TurnNo     int          `json:"turn_no"`
	Players    []PlayerInfo `json:"players"`
	YourSymbol string       `json:"your_symbol"`
	// TimeLimit is the per-move window in seconds; TimeLeft is what remains
	// of the current turn, so a reconnecting client can resume its clock.
	TimeLimit float64 `json:"time_limit"`
	TimeLeft  float64 `json:"time_left"`
}

type StartPayload struct {
	Turn      string       `json:"turn"`
	Players   []PlayerInfo `json:"players"`
	TimeLimit float64      `json:"time_limit"`
}

type MoveBroadcast struct {
	UserID    uint    `json:"user_id"`
	Symbol    string  `json:"symbol"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	TurnNo    int     `json:"turn_no"`
	NextTurn  string  `json:"next_turn"`
	TimeLimit float64 `json:"time_limit"`
}

// ResultPayload announces a terminal state. WinnerID is nil for a draw.
// RatingChanges maps user id to the signed Elo delta just applied.
type ResultPayload struct {
	WinnerID      *uint        `json:"winner_id,omitempty"`
	WinnerSymbol  string       `json:"winner_symbol,omitempty"`
	Line          []board.Cell `json:"line,omitempty"`
	RatingChanges map[uint]int `json:"rating_changes,omitempty"`
}

type PlayerLeftPayload struct {
	UserID uint `json:"user_id"`
}

type RematchRequestPayload struct {
	UserID uint `json:"user_id"`
}

type RematchAcceptedPayload struct {
	MatchID uint `json:"match_id"`
}

type ChatBroadcast struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// marshal converts a decoded frame's data into a typed payload by a JSON
// round trip.
func marshal(in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func errFrame(code, msg string) Frame {
	return Frame{Type: TypeError, Data: ErrorPayload{Code: code, Message: msg}}
}

// ErrorFrame builds an error frame for callers outside the package, such
// as the gateway rejecting an attach.
func ErrorFrame(code, msg string) Frame {
	return errFrame(code, msg)
}
