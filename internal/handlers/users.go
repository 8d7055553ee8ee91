package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/twelves/apiserver/internal/services"
	"github.com/twelves/apiserver/types"
)

// UserHandler exposes thin profile reads and deletion.
type UserHandler struct {
	accounts Accounts
	logger   *slog.Logger
}

func NewUserHandler(accounts Accounts, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, logger: logger}
}

// UserRouter registers user routes. Every route requires a session.
func UserRouter(r chi.Router, handler *UserHandler, requireSession func(http.Handler) http.Handler) {
	r.Use(requireSession)
	r.Get("/", handler.ListUsers)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Delete("/", handler.DeleteUser)
	})
}

// UserListResponse is the paginated list response payload.
type UserListResponse struct {
	Items []types.SessionUser `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, err.Error())
		return
	}

	users, total, err := h.accounts.List(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Items: users, Page: page, Limit: limit, Total: total})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Get(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), userID(r)); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "userID"))
}
