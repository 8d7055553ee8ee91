package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/twelves/apiserver/internal/services"
	"github.com/twelves/apiserver/internal/validate"
	"github.com/twelves/apiserver/types"
)

// Accounts is the account use-case surface the HTTP layer needs.
type Accounts interface {
	Register(ctx context.Context, in services.RegisterInput) (types.UserSummary, error)
	Login(ctx context.Context, email, password string) (services.LoginResult, error)
	ResolveSession(ctx context.Context, token string) (types.SessionUser, bool, error)
	Get(ctx context.Context, id string) (types.SessionUser, error)
	List(ctx context.Context, offset, limit int) ([]types.SessionUser, int, error)
	Delete(ctx context.Context, id string) error
}

// SessionCookie describes the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler provides registration and cookie session endpoints.
type AuthHandler struct {
	accounts Accounts
	cookie   SessionCookie
	logger   *slog.Logger
}

func NewAuthHandler(accounts Accounts, cookie SessionCookie, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, cookie: cookie, logger: logger}
}

// AuthRouter registers auth routes on the given router. limit guards registration.
func AuthRouter(r chi.Router, handler *AuthHandler, limit func(http.Handler) http.Handler) {
	r.With(limit).Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.With(handler.RequireSession).Get("/me", handler.Me)
}

// RequireSession resolves the session token, from the cookie first and the
// bearer header second, and injects the live identity into the context.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, services.KindUnauthorized, services.ErrUnauthorized.Message)
			return
		}

		user, ok, err := h.accounts.ResolveSession(r.Context(), token)
		if err != nil {
			writeServiceError(w, r, h.logger, err, "failed to resolve session")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, services.KindUnauthorized, services.ErrUnauthorized.Message)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSessionUser(r.Context(), user)))
	})
}

func (h *AuthHandler) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(h.cookie.Name); err == nil && c.Value != "" {
		return c.Value
	}
	token, err := bearerToken(r)
	if err != nil {
		return ""
	}
	return token
}

type RegisterResponse struct {
	Message string            `json:"message"`
	User    types.UserSummary `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}
	birthDate, err := validate.ParseDate(req.BirthDate)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		BirthDate: birthDate,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to register")
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{Message: "Registration successful", User: user})
}

type LoginResponse struct {
	User    types.SessionUser `json:"user"`
	Message string            `json:"message"`
}

// Login sets the session cookie. The token never appears in the body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to authenticate")
		return
	}

	http.SetCookie(w, h.newCookie(result.Token, int(h.cookie.MaxAge.Seconds())))
	writeJSON(w, http.StatusOK, LoginResponse{User: result.User, Message: "Login successful"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.newCookie("", -1))
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logout successful"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := SessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.KindUnauthorized, services.ErrUnauthorized.Message)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) newCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
