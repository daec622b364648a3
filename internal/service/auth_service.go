package service

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/keza/ikimina/internal/auth"
	"github.com/keza/ikimina/internal/storage"
)

// AuthService exposes register/login/profile on top of the auth
// collaborator.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	users         auth.UserStorage
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, users auth.UserStorage) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		users:         users,
	}
}

// Register creates a new user account and returns a session token.
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.DisplayName == "" {
		badRequest(w, "email and display_name are required")
		return
	}

	user, err := s.authenticator.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		slog.Warn("Registration failed", "email", req.Email, "error", err)
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, auth.ErrWeakPassword):
			badRequest(w, err.Error())
		default:
			writeError(w, err)
		}
		return
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("User registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  toUserJSON(user),
	})
}

// Login verifies credentials and returns a session token.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.authenticator.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Warn("Login failed", "email", req.Email)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrInvalidCredentials.Error()})
		return
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("User logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserJSON(user),
	})
}

// Profile returns the authenticated user's account.
func (s *AuthService) Profile(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	user, err := s.users.GetUserByID(r.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Token outlived the account.
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "account no longer exists"})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserJSON(user)})
}
