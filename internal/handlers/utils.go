package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/twelves/apiserver/internal/services"
	"github.com/twelves/apiserver/internal/validate"
	"github.com/twelves/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

type contextKey string

const contextSessionUserKey contextKey = "session_user"

// ErrorResponse is the error payload. Kind is stable and machine readable.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// MessageResponse is returned by endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

func withSessionUser(ctx context.Context, user types.SessionUser) context.Context {
	return context.WithValue(ctx, contextSessionUserKey, user)
}

// SessionUserFromContext returns the identity resolved by RequireSession.
func SessionUserFromContext(ctx context.Context) (types.SessionUser, bool) {
	user, ok := ctx.Value(contextSessionUserKey).(types.SessionUser)
	return user, ok
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, kind services.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(kind)})
}

func writeValidationError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, services.KindValidation, validate.FirstMessage(err))
}

var kindStatus = map[services.Kind]int{
	services.KindValidation:   http.StatusBadRequest,
	services.KindConflict:     http.StatusConflict,
	services.KindUnauthorized: http.StatusUnauthorized,
	services.KindNotFound:     http.StatusNotFound,
	services.KindMismatch:     http.StatusBadRequest,
}

// writeServiceError maps a service error onto a response. Anything that is
// not a domain error is logged and answered with fallback.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	kind := services.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		writeError(w, status, kind, err.Error())
		return
	}
	logger.ErrorContext(r.Context(), fallback,
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeError(w, http.StatusInternalServerError, services.KindInternal, fallback)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "invalid request body")
		return false
	}
	return true
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}
	limit = min(limit, maxLimit)
	return page, limit, (page - 1) * limit, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

