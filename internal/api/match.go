package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ttaflutter/game-plus/internal/metrics"
	"github.com/ttaflutter/game-plus/internal/session"
	"github.com/ttaflutter/game-plus/internal/store"
	"github.com/ttaflutter/game-plus/internal/utils"
)

// WebSocket close codes beyond the RFC range used by the gateway.
const (
	closeUnauthorized  = 4001
	closeMatchNotFound = 4004
)

// MatchHandler serves the match REST endpoints and the WebSocket gateway.
type MatchHandler struct {
	Store     *store.Store
	Registry  *session.Registry
	JWTSecret string
	Log       *zap.Logger

	upgrader websocket.Upgrader
}

func NewMatchHandler(st *store.Store, reg *session.Registry, secret string, log *zap.Logger) *MatchHandler {
	return &MatchHandler{
		Store:     st,
		Registry:  reg,
		JWTSecret: secret,
		Log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type createMatchRequest struct {
	BoardRows int `json:"board_rows"`
	BoardCols int `json:"board_cols"`
	WinLen    int `json:"win_len"`
}

// Create opens an ad-hoc waiting match outside the lobby flow. Seats are
// taken on first WebSocket attach.
func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.BoardRows == 0 {
		req.BoardRows = 15
	}
	if req.BoardCols == 0 {
		req.BoardCols = 19
	}
	if req.WinLen == 0 {
		req.WinLen = 5
	}
	if req.BoardRows < 5 || req.BoardRows > 50 || req.BoardCols < 5 || req.BoardCols > 50 ||
		req.WinLen < 3 || req.WinLen > req.BoardRows || req.WinLen > req.BoardCols {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid board configuration")
		return
	}

	game, err := h.Store.GameByName("Caro")
	if err != nil {
		h.Log.Error("game lookup failed", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not create match")
		return
	}
	match, err := h.Store.CreateMatch(game.ID, req.BoardRows, req.BoardCols, req.WinLen)
	if err != nil {
		h.Log.Error("create match failed", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not create match")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, match)
}

// Get returns the durable record of a match with seats and move log.
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseUint(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid match id")
		return
	}
	match, err := h.Store.GetMatch(uint(matchID))
	if err != nil {
		if errors.Is(err, store.ErrMatchNotFound) {
			utils.WriteError(w, http.StatusNotFound, "not_found", "match not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not load match")
		return
	}
	players, err := h.Store.LoadMatchPlayers(uint(matchID))
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not load match")
		return
	}
	moves, err := h.Store.LoadMoves(uint(matchID))
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not load match")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"match":   match,
		"players": players,
		"moves":   moves,
	})
}

// ServeWS upgrades the connection and runs the read loop for one client.
// Authentication happens after the upgrade so the client receives a
// close frame with an explicit code instead of a failed handshake.
func (h *MatchHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseUint(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid match id")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	userID, err := utils.VerifyRequest(r, h.JWTSecret)
	if err != nil {
		closeWith(conn, closeUnauthorized, "unauthorized")
		return
	}

	room, err := h.Registry.GetOrCreate(uint(matchID))
	if err != nil {
		if errors.Is(err, store.ErrMatchNotFound) {
			closeWith(conn, closeMatchNotFound, "match not found")
			return
		}
		h.Log.Error("room hydration failed", zap.Uint64("match_id", matchID), zap.Error(err))
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	client := session.NewClient(conn, userID)
	if err := room.Attach(client); err != nil {
		_ = client.Send(session.ErrorFrame(session.CodeFor(err), err.Error()))
		client.Close(websocket.ClosePolicyViolation, err.Error())
		return
	}

	metrics.ConnectionsOpen.Inc()
	defer metrics.ConnectionsOpen.Dec()
	defer room.Detach(client)

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			return
		}
		room.Handle(client, frame)
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}
