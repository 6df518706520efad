// Package api contains the HTTP and WebSocket handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ttaflutter/game-plus/internal/models"
	"github.com/ttaflutter/game-plus/internal/store"
	"github.com/ttaflutter/game-plus/internal/utils"
)

// AuthHandler serves registration, login and the current-user endpoint.
type AuthHandler struct {
	Store     *store.Store
	JWTSecret string
	Log       *zap.Logger
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest accepts either the username or the account email in the
// username field.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "username, email and a password of at least 8 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not hash password")
		return
	}
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := h.Store.CreateUser(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.WriteError(w, http.StatusConflict, "conflict", "username or email already taken")
			return
		}
		h.Log.Error("create user failed", zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not create user")
		return
	}

	token, err := utils.GenerateToken(user.ID, h.JWTSecret)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not issue token")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	ident := strings.TrimSpace(req.Username)
	user, err := h.Store.GetUserByUsername(ident)
	if errors.Is(err, store.ErrUserNotFound) && strings.Contains(ident, "@") {
		user, err = h.Store.GetUserByEmail(ident)
	}
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	token, err := utils.GenerateToken(user.ID, h.JWTSecret)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "internal", "could not issue token")
		return
	}
	utils.WriteJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFrom(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	user, err := h.Store.GetUserByID(userID)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}
