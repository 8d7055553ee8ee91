package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/twelves/apiserver/internal/services"
	"github.com/twelves/apiserver/internal/validate"
	"github.com/twelves/apiserver/types"
)

// Leads is the lead funnel surface the HTTP layer needs.
type Leads interface {
	CaptureEmail(ctx context.Context, in services.CaptureInput) (services.CaptureResult, error)
	UpdateProgress(ctx context.Context, leadID string, in services.LeadUpdate) (types.Lead, error)
	CompleteRegistration(ctx context.Context, in services.CompleteInput) (services.CompleteResult, error)
	CheckEmail(ctx context.Context, email string) (services.LeadStatusView, bool, error)
	ConversionRates(ctx context.Context) (types.ConversionReport, error)
}

// LeadHandler serves the progressive registration funnel.
type LeadHandler struct {
	leads  Leads
	logger *slog.Logger
}

func NewLeadHandler(leads Leads, logger *slog.Logger) *LeadHandler {
	return &LeadHandler{leads: leads, logger: logger}
}

// LeadRouter registers the funnel routes. limit guards the endpoints that
// create or look up records.
func LeadRouter(r chi.Router, handler *LeadHandler, limit func(http.Handler) http.Handler) {
	r.With(limit).Post("/quick-register", handler.QuickRegister)
	r.Put("/update-lead/{leadID}", handler.UpdateLead)
	r.With(limit).Post("/complete-registration", handler.CompleteRegistration)
	r.Get("/conversion-rates", handler.ConversionRates)
	r.With(limit).Post("/check-email", handler.CheckEmail)
}

type LeadProgress struct {
	LeadID      string `json:"leadId"`
	CaptureStep int    `json:"captureStep"`
	IsExisting  *bool  `json:"isExisting,omitempty"`
}

type LeadProgressResponse struct {
	Message string       `json:"message"`
	Data    LeadProgress `json:"data"`
}

func (h *LeadHandler) QuickRegister(w http.ResponseWriter, r *http.Request) {
	var req QuickRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	res, err := h.leads.CaptureEmail(r.Context(), services.CaptureInput{
		Email:          req.Email,
		Source:         req.Source,
		IPAddress:      clientIP(r),
		UserAgent:      r.UserAgent(),
		Referrer:       r.Referer(),
		MarketingOptIn: req.MarketingOptIn,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to process registration")
		return
	}

	status, message := http.StatusCreated, "Email captured successfully"
	if res.Existing {
		status, message = http.StatusOK, "Welcome back!"
	}
	existing := res.Existing
	writeJSON(w, status, LeadProgressResponse{
		Message: message,
		Data:    LeadProgress{LeadID: res.Lead.ID, CaptureStep: res.Lead.CaptureStep, IsExisting: &existing},
	})
}

func (h *LeadHandler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	update := services.LeadUpdate{}
	if req.FirstName != nil {
		name := validate.NormalizeName(*req.FirstName)
		update.FirstName = &name
	}
	if req.LastName != nil {
		name := validate.NormalizeName(*req.LastName)
		update.LastName = &name
	}
	if req.Phone != nil {
		// Already validated, so this cannot fail.
		phone, _ := validate.NormalizePhone(*req.Phone)
		update.Phone = &phone
	}

	leadID := strings.TrimSpace(chi.URLParam(r, "leadID"))
	lead, err := h.leads.UpdateProgress(r.Context(), leadID, update)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update information")
		return
	}
	writeJSON(w, http.StatusOK, LeadProgressResponse{
		Message: "Information updated successfully",
		Data:    LeadProgress{LeadID: lead.ID, CaptureStep: lead.CaptureStep},
	})
}

type CompletedRegistration struct {
	LeadID    string `json:"leadId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Token     string `json:"token"`
}

type CompleteRegistrationResponse struct {
	Message string                `json:"message"`
	Data    CompletedRegistration `json:"data"`
}

func (h *LeadHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req CompleteRegistrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}
	phone, _ := validate.NormalizePhone(req.Phone)

	res, err := h.leads.CompleteRegistration(r.Context(), services.CompleteInput{
		LeadID:    req.LeadID,
		Email:     req.Email,
		FirstName: validate.NormalizeName(req.FirstName),
		LastName:  validate.NormalizeName(req.LastName),
		Phone:     phone,
		Password:  req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to complete registration")
		return
	}
	writeJSON(w, http.StatusOK, CompleteRegistrationResponse{
		Message: "Registration completed successfully",
		Data: CompletedRegistration{
			LeadID:    res.Lead.ID,
			Email:     res.Lead.Email,
			FirstName: res.Lead.FirstName,
			LastName:  res.Lead.LastName,
			Token:     res.Token,
		},
	})
}

type ConversionRatesResponse struct {
	Data types.ConversionReport `json:"data"`
}

func (h *LeadHandler) ConversionRates(w http.ResponseWriter, r *http.Request) {
	report, err := h.leads.ConversionRates(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get conversion rates")
		return
	}
	writeJSON(w, http.StatusOK, ConversionRatesResponse{Data: report})
}

type CheckEmailResponse struct {
	Exists bool                     `json:"exists"`
	Data   *services.LeadStatusView `json:"data"`
}

func (h *LeadHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req CheckEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = validate.NormalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	view, ok, err := h.leads.CheckEmail(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to check email")
		return
	}
	resp := CheckEmailResponse{Exists: ok}
	if ok {
		resp.Data = &view
	}
	writeJSON(w, http.StatusOK, resp)
}
