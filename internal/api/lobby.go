package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ttaflutter/game-plus/internal/lobby"
	"github.com/ttaflutter/game-plus/internal/store"
	"github.com/ttaflutter/game-plus/internal/utils"
)

// LobbyHandler serves the room REST endpoints.
type LobbyHandler struct {
	Manager *lobby.Manager
	Log     *zap.Logger
}

func (h *LobbyHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	rooms, err := h.Manager.List(r.Context(), limit, offset)
	if err != nil {
		h.Log.Error("list rooms failed", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not list rooms")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

func (h *LobbyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	var in lobby.CreateRoomInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	room, err := h.Manager.CreateRoom(r.Context(), userID, in)
	if err != nil {
		h.writeLobbyError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, room)
}

type joinRequest struct {
	RoomCode string `json:"room_code"`
	Password string `json:"password"`
}

func (h *LobbyHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	room, err := h.Manager.JoinRoom(r.Context(), req.RoomCode, userID, req.Password)
	if err != nil {
		h.writeLobbyError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, room)
}

func (h *LobbyHandler) Detail(w http.ResponseWriter, r *http.Request) {
	roomID, err := h.roomID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}
	room, seats, err := h.Manager.Detail(roomID)
	if err != nil {
		h.writeLobbyError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"room":    room,
		"players": seats,
	})
}

type readyRequest struct {
	Ready bool `json:"ready"`
}

func (h *LobbyHandler) Ready(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	roomID, err := h.roomID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}
	var req readyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.Manager.SetReady(r.Context(), roomID, userID, req.Ready); err != nil {
		h.writeLobbyError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"ready": req.Ready})
}

func (h *LobbyHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	roomID, err := h.roomID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}
	if err := h.Manager.Leave(r.Context(), roomID, userID); err != nil {
		h.writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LobbyHandler) Kick(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	roomID, err := h.roomID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}
	target, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}
	if err := h.Manager.Kick(r.Context(), roomID, userID, uint(target)); err != nil {
		h.writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LobbyHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	roomID, err := h.roomID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}
	match, err := h.Manager.Start(r.Context(), roomID, userID)
	if err != nil {
		h.writeLobbyError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, match)
}

func (h *LobbyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFrom(r.Context())
	roomID, err := h.roomID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}
	if err := h.Manager.Delete(r.Context(), roomID, userID); err != nil {
		h.writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LobbyHandler) roomID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "roomID"), 10, 64)
	return uint(id), err
}

func (h *LobbyHandler) writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		utils.WriteError(w, http.StatusNotFound, "not_found", "room not found")
	case errors.Is(err, lobby.ErrWrongPassword):
		utils.WriteError(w, http.StatusForbidden, "wrong_password", "wrong room password")
	case errors.Is(err, lobby.ErrRoomFull):
		utils.WriteError(w, http.StatusConflict, "room_full", "room is full")
	case errors.Is(err, lobby.ErrNotHost):
		utils.WriteError(w, http.StatusForbidden, "not_host", "only the host can do that")
	case errors.Is(err, lobby.ErrRoomNotJoinable):
		utils.WriteError(w, http.StatusConflict, "not_joinable", "room is not joinable")
	case errors.Is(err, lobby.ErrInvalidConfig):
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid room configuration")
	case errors.Is(err, lobby.ErrNotInRoom):
		utils.WriteError(w, http.StatusNotFound, "not_found", "user is not in the room")
	case errors.Is(err, lobby.ErrAlreadyJoined):
		utils.WriteError(w, http.StatusConflict, "already_joined", "you already joined this room")
	case errors.Is(err, lobby.ErrHostAlwaysReady):
		utils.WriteError(w, http.StatusBadRequest, "host_always_ready", "host is always ready")
	case errors.Is(err, store.ErrRoomNotWaiting):
		utils.WriteError(w, http.StatusConflict, "not_joinable", "room already started")
	case errors.Is(err, store.ErrNotEnoughPlayers):
		utils.WriteError(w, http.StatusConflict, "not_enough_players", "at least two players are required")
	case errors.Is(err, store.ErrPlayersNotReady):
		utils.WriteError(w, http.StatusConflict, "players_not_ready", "all players must be ready")
	default:
		h.Log.Error("lobby operation failed", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "internal", "lobby operation failed")
	}
}
