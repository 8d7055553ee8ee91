package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/twelves/apiserver/internal/auth"
	"github.com/twelves/apiserver/internal/store"
	"github.com/twelves/apiserver/types"
)

const (
	// DefaultCaptureSource is recorded when a capture request names no source.
	DefaultCaptureSource = "modal"
	// RegistrationSource tags leads first seen at full registration.
	RegistrationSource = "registration"
	directSource       = "direct"
)

// Analytics event names emitted by the lead funnel.
const (
	EventLeadCaptured          = "lead_captured"
	EventLeadReturned          = "lead_returned"
	EventLeadUpdated           = "lead_updated"
	EventRegistrationCompleted = "registration_completed"
)

// LeadRepository defines persistence operations for leads.
type LeadRepository interface {
	GetByID(ctx context.Context, id string) (types.Lead, error)
	GetByEmail(ctx context.Context, email string) (types.Lead, error)
	Create(ctx context.Context, lead types.Lead) (types.Lead, error)
	Touch(ctx context.Context, id, source string, at time.Time) (types.Lead, error)
	Progress(ctx context.Context, id string, p store.LeadProgress) (types.Lead, error)
	Complete(ctx context.Context, id string, c store.LeadCompletion) (types.Lead, error)
	List(ctx context.Context) ([]types.Lead, error)
}

// LeadTokens signs the token handed out on registration completion.
type LeadTokens interface {
	IssueLead(lead types.Lead) (string, error)
}

// EventSink records analytics events. Implementations must not block the
// caller on delivery.
type EventSink interface {
	Track(ctx context.Context, entityID, event string, payload map[string]any)
}

// CaptureInput is a first-touch email capture.
type CaptureInput struct {
	Email          string
	Source         string
	IPAddress      string
	UserAgent      string
	Referrer       string
	MarketingOptIn bool
}

type CaptureResult struct {
	Lead     types.Lead
	Existing bool
}

// LeadUpdate carries the optional profile fields of a progressive capture.
// Nil and empty fields are left untouched.
type LeadUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// CompleteInput is a full registration through the funnel. LeadID is optional.
type CompleteInput struct {
	LeadID    string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Password  string
}

type CompleteResult struct {
	Lead  types.Lead
	Token string
}

// LeadStatusView is what check-email discloses about a known lead.
type LeadStatusView struct {
	Status      types.LeadStatus `json:"status"`
	CaptureStep int              `json:"captureStep"`
}

// LeadService encapsulates the lead capture funnel.
type LeadService struct {
	repo   LeadRepository
	hasher auth.Hasher
	tokens LeadTokens
	sink   EventSink
	now    func() time.Time
}

func NewLeadService(repo LeadRepository, hasher auth.Hasher, tokens LeadTokens, sink EventSink) *LeadService {
	return &LeadService{repo: repo, hasher: hasher, tokens: tokens, sink: sink, now: time.Now}
}

// CaptureEmail finds or creates the lead for an email address.
func (s *LeadService) CaptureEmail(ctx context.Context, in CaptureInput) (CaptureResult, error) {
	if in.Source == "" {
		in.Source = DefaultCaptureSource
	}

	lead, err := s.repo.GetByEmail(ctx, in.Email)
	if err == nil {
		return s.returning(ctx, lead, in.Source)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return CaptureResult{}, err
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, types.Lead{
		Email:          in.Email,
		Status:         types.LeadStatusLead,
		CaptureStep:    types.CaptureStepEmail,
		CaptureSources: []string{in.Source},
		IPAddress:      in.IPAddress,
		UserAgent:      in.UserAgent,
		Referrer:       in.Referrer,
		MarketingOptIn: in.MarketingOptIn,
		Conversion: types.ConversionData{
			InitialSource:    in.Source,
			InitialTimestamp: &now,
		},
		CreatedAt:      now,
		LastActivityAt: now,
	})
	if errors.Is(err, store.ErrDuplicateEmail) {
		// Lost a race with a concurrent first capture.
		existing, getErr := s.repo.GetByEmail(ctx, in.Email)
		if getErr != nil {
			return CaptureResult{}, getErr
		}
		return s.returning(ctx, existing, in.Source)
	}
	if err != nil {
		return CaptureResult{}, err
	}

	s.sink.Track(ctx, created.ID, EventLeadCaptured, map[string]any{
		"email":       created.Email,
		"source":      in.Source,
		"captureStep": created.CaptureStep,
	})
	return CaptureResult{Lead: created}, nil
}

func (s *LeadService) returning(ctx context.Context, lead types.Lead, source string) (CaptureResult, error) {
	updated, err := s.repo.Touch(ctx, lead.ID, source, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CaptureResult{}, ErrLeadNotFound
		}
		return CaptureResult{}, err
	}

	s.sink.Track(ctx, updated.ID, EventLeadReturned, map[string]any{
		"email":       updated.Email,
		"source":      source,
		"captureStep": updated.CaptureStep,
	})
	return CaptureResult{Lead: updated, Existing: true}, nil
}

// UpdateProgress applies the present fields and advances the capture step.
// The step never moves backwards.
func (s *LeadService) UpdateProgress(ctx context.Context, leadID string, in LeadUpdate) (types.Lead, error) {
	progress := store.LeadProgress{At: s.now().UTC()}
	fields := make([]string, 0, 3)
	if v := in.FirstName; v != nil && *v != "" {
		progress.FirstName = v
		fields = append(fields, "firstName")
	}
	if v := in.LastName; v != nil && *v != "" {
		progress.LastName = v
		fields = append(fields, "lastName")
	}
	if v := in.Phone; v != nil && *v != "" {
		progress.Phone = v
		fields = append(fields, "phone")
	}

	updated, err := s.repo.Progress(ctx, leadID, progress)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Lead{}, ErrLeadNotFound
		}
		return types.Lead{}, err
	}

	s.sink.Track(ctx, updated.ID, EventLeadUpdated, map[string]any{
		"captureStep":   updated.CaptureStep,
		"fieldsUpdated": fields,
	})
	return updated, nil
}

// CompleteRegistration folds a lead into a registered customer. The lead is
// located by id when given, otherwise by email, otherwise created. A lead
// that already completed registration yields ErrAlreadyRegistered.
func (s *LeadService) CompleteRegistration(ctx context.Context, in CompleteInput) (CompleteResult, error) {
	lead, fresh, err := s.locate(ctx, in)
	if err != nil {
		return CompleteResult{}, err
	}

	if lead.PasswordHash != "" {
		return CompleteResult{}, ErrAlreadyRegistered
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return CompleteResult{}, err
	}

	now := s.now().UTC()
	var minutes *int
	if initial := lead.Conversion.InitialTimestamp; initial != nil {
		m := int(math.Round(float64(now.Sub(*initial)) / float64(time.Minute)))
		minutes = &m
	}

	var saved types.Lead
	if fresh {
		lead.FirstName = in.FirstName
		lead.LastName = in.LastName
		lead.Phone = in.Phone
		lead.PasswordHash = hash
		lead.Status = types.LeadStatusRegistered
		lead.CaptureStep = types.CaptureStepContact
		lead.LastActivityAt = now
		lead.Conversion.CompletionTimestamp = &now
		lead.Conversion.MinutesToConvert = minutes
		saved, err = s.repo.Create(ctx, lead)
		if errors.Is(err, store.ErrDuplicateEmail) {
			// Another request created the lead first; complete that one instead.
			return s.CompleteRegistration(ctx, in)
		}
	} else {
		saved, err = s.repo.Complete(ctx, lead.ID, store.LeadCompletion{
			FirstName:        in.FirstName,
			LastName:         in.LastName,
			Phone:            in.Phone,
			PasswordHash:     hash,
			CompletedAt:      now,
			MinutesToConvert: minutes,
		})
		switch {
		case errors.Is(err, store.ErrLeadCompleted):
			return CompleteResult{}, ErrAlreadyRegistered
		case errors.Is(err, store.ErrNotFound):
			return CompleteResult{}, ErrLeadNotFound
		}
	}
	if err != nil {
		return CompleteResult{}, err
	}

	token, err := s.tokens.IssueLead(saved)
	if err != nil {
		return CompleteResult{}, err
	}

	source := directSource
	if len(saved.CaptureSources) > 0 {
		source = saved.CaptureSources[0]
	}
	s.sink.Track(ctx, saved.ID, EventRegistrationCompleted, map[string]any{
		"email":  saved.Email,
		"source": source,
	})
	return CompleteResult{Lead: saved, Token: token}, nil
}

func (s *LeadService) locate(ctx context.Context, in CompleteInput) (types.Lead, bool, error) {
	if in.LeadID != "" {
		lead, err := s.repo.GetByID(ctx, in.LeadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return types.Lead{}, false, ErrLeadNotFound
			}
			return types.Lead{}, false, err
		}
		if lead.Email != in.Email {
			return types.Lead{}, false, ErrEmailMismatch
		}
		return lead, false, nil
	}

	lead, err := s.repo.GetByEmail(ctx, in.Email)
	if err == nil {
		return lead, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Lead{}, false, err
	}

	now := s.now().UTC()
	return types.Lead{
		Email:          in.Email,
		Status:         types.LeadStatusLead,
		CaptureStep:    types.CaptureStepEmail,
		CaptureSources: []string{RegistrationSource},
		Conversion: types.ConversionData{
			InitialSource:    RegistrationSource,
			InitialTimestamp: &now,
		},
		CreatedAt: now,
	}, true, nil
}

// CheckEmail reports whether a lead exists for the email and, if so, how far
// along the funnel it is.
func (s *LeadService) CheckEmail(ctx context.Context, email string) (LeadStatusView, bool, error) {
	lead, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LeadStatusView{}, false, nil
		}
		return LeadStatusView{}, false, err
	}
	return LeadStatusView{Status: lead.Status, CaptureStep: lead.CaptureStep}, true, nil
}

// ConversionRates aggregates the funnel statistics over every lead.
func (s *LeadService) ConversionRates(ctx context.Context) (types.ConversionReport, error) {
	leads, err := s.repo.List(ctx)
	if err != nil {
		return types.ConversionReport{}, err
	}
	return BuildConversionReport(leads, s.now()), nil
}
