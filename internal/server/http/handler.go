// Package http exposes the authentication and user operations over a chi
// router.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Authenticator is the part of services.AuthService used by the handlers.
type Authenticator interface {
	Login(ctx context.Context, account, passwordHash string, key []byte) (*models.AuthResult, error)
	Refresh(ctx context.Context, account, refreshToken string, key []byte) (*models.AuthResult, error)
	Claims(credential string, key []byte) (*auth.Claims, error)
}

// UserManager is the part of services.UserService used by the handlers.
type UserManager interface {
	List(ctx context.Context) ([]*models.User, error)
	Register(ctx context.Context, account, passwordHash, email string) (*models.User, error)
	Update(ctx context.Context, account, passwordHash, email string) (*models.User, error)
	Delete(ctx context.Context, account string) error
}

// Handler serves the HTTP API.
type Handler struct {
	auth   Authenticator
	users  UserManager
	key    []byte
	logger logging.Logger
}

// NewHandler constructs a Handler signing and verifying tokens with key.
func NewHandler(a Authenticator, u UserManager, key []byte, l logging.Logger) *Handler {
	return &Handler{auth: a, users: u, key: key, logger: l}
}

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext returns the claims stored by RequireBearer.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// RequireBearer rejects requests without a valid access token in the
// Authorization header.
func (h *Handler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.auth.Claims(r.Header.Get("Authorization"), h.key)
		if err != nil {
			h.logger.Debug(r.Context(), "request rejected", "path", r.URL.Path, "error", err)
			writeJSONError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

type loginRequest struct {
	Account      string `json:"account"`
	PasswordHash string `json:"password_hash"`
}

type refreshRequest struct {
	Account      string `json:"account"`
	RefreshToken string `json:"refresh_token"`
}

type userRequest struct {
	Account      string `json:"account"`
	PasswordHash string `json:"password_hash"`
	Email        string `json:"email"`
}

type userResponse struct {
	ID              string    `json:"id"`
	Account         string    `json:"account"`
	Email           string    `json:"email"`
	CreatedAt       time.Time `json:"created_at"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

type meResponse struct {
	Account   string    `json:"account"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Account:         u.Account,
		Email:           u.Email,
		CreatedAt:       u.CreatedAt,
		HasRefreshToken: u.HasRefreshToken(),
	}
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Account, req.PasswordHash, h.key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.auth.Refresh(r.Context(), req.Account, req.RefreshToken, h.key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	resp := meResponse{Account: claims.Account}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(users) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// RegisterUser handles POST /users.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.users.Register(r.Context(), req.Account, req.PasswordHash, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// UpdateUser handles PUT /users.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.users.Update(r.Context(), req.Account, req.PasswordHash, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteUser handles DELETE /users?account=.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeJSONError(w, http.StatusBadRequest, "account is required")
		return
	}

	if err := h.users.Delete(r.Context(), account); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSONError(w, status, msg)
}

// statusFor maps service errors to a status code and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrWeakKey):
		return http.StatusInternalServerError, "internal error"
	case errors.Is(err, common.ErrorUnauthorized), common.IsVerificationError(err):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, common.ErrorInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, common.ErrRefreshConflict):
		return http.StatusConflict, "concurrent login, retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
