package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/twelves/apiserver/types"
)

// LeadRepository handles persistence for funnel leads.
type LeadRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{db: db, now: time.Now}
}

const leadColumns = `id, email, first_name, last_name, phone, password_hash, status, capture_step,
		       capture_sources, ip_address, user_agent, referrer, email_verified, phone_verified,
		       marketing_opt_in, initial_source, initial_at, completed_at, minutes_to_convert,
		       created_at, last_activity_at, updated_at`

func (r *LeadRepository) GetByID(ctx context.Context, id string) (types.Lead, error) {
	if !validID(id) {
		return types.Lead{}, ErrNotFound
	}
	return r.getLead(ctx, `id = $1`, id)
}

func (r *LeadRepository) GetByEmail(ctx context.Context, email string) (types.Lead, error) {
	return r.getLead(ctx, `email = $1`, email)
}

// Create inserts a new lead. A lead with the same email yields ErrDuplicateEmail.
func (r *LeadRepository) Create(ctx context.Context, lead types.Lead) (types.Lead, error) {
	now := r.now().UTC()
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	if lead.LastActivityAt.IsZero() {
		lead.LastActivityAt = now
	}
	lead.UpdatedAt = now
	if lead.CaptureSources == nil {
		lead.CaptureSources = []string{}
	}

	const query = `
		INSERT INTO leads (
			id, email, first_name, last_name, phone, password_hash, status, capture_step,
			capture_sources, ip_address, user_agent, referrer, email_verified, phone_verified,
			marketing_opt_in, initial_source, initial_at, completed_at, minutes_to_convert,
			created_at, last_activity_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	if _, err := r.db.ExecContext(ctx, query,
		lead.ID,
		lead.Email,
		lead.FirstName,
		lead.LastName,
		lead.Phone,
		lead.PasswordHash,
		lead.Status,
		lead.CaptureStep,
		pq.Array(lead.CaptureSources),
		lead.IPAddress,
		lead.UserAgent,
		lead.Referrer,
		lead.EmailVerified,
		lead.PhoneVerified,
		lead.MarketingOptIn,
		lead.Conversion.InitialSource,
		lead.Conversion.InitialTimestamp,
		lead.Conversion.CompletionTimestamp,
		lead.Conversion.MinutesToConvert,
		lead.CreatedAt,
		lead.LastActivityAt,
		lead.UpdatedAt,
	); err != nil {
		return types.Lead{}, fmt.Errorf("store: insert lead: %w", mapUniqueViolation(err))
	}
	return lead, nil
}

// LeadProgress carries the optional fields of a progressive capture. Nil
// fields keep their stored value.
type LeadProgress struct {
	FirstName *string
	LastName  *string
	Phone     *string
	At        time.Time
}

// LeadCompletion carries the fields written when a lead registers.
// MinutesToConvert is only stored on the lead to registered transition.
type LeadCompletion struct {
	FirstName        string
	LastName         string
	Phone            string
	PasswordHash     string
	CompletedAt      time.Time
	MinutesToConvert *int
}

// Touch records a returning visit, appending source when it is new.
func (r *LeadRepository) Touch(ctx context.Context, id, source string, at time.Time) (types.Lead, error) {
	if !validID(id) {
		return types.Lead{}, ErrNotFound
	}

	const query = `
		UPDATE leads
		SET capture_sources = CASE
				WHEN $2 = ANY(capture_sources) THEN capture_sources
				ELSE array_append(capture_sources, $2)
			END,
			last_activity_at = $3,
			updated_at = $4
		WHERE id = $1
		RETURNING ` + leadColumns
	return r.updateLead(ctx, "touch", query, id, source, at, r.now().UTC())
}

// Progress applies the present fields and recomputes the capture step from
// the stored row. The step never decreases.
func (r *LeadRepository) Progress(ctx context.Context, id string, p LeadProgress) (types.Lead, error) {
	if !validID(id) {
		return types.Lead{}, ErrNotFound
	}

	const query = `
		UPDATE leads
		SET first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			phone = COALESCE($4, phone),
			capture_step = GREATEST(capture_step, CASE
				WHEN COALESCE($2, first_name) <> '' AND COALESCE($3, last_name) <> ''
					AND COALESCE($4, phone) <> '' THEN 3
				WHEN COALESCE($2, first_name) <> '' AND COALESCE($3, last_name) <> '' THEN 2
				ELSE 1
			END),
			last_activity_at = $5,
			updated_at = $6
		WHERE id = $1
		RETURNING ` + leadColumns
	return r.updateLead(ctx, "progress", query, id, p.FirstName, p.LastName, p.Phone, p.At, r.now().UTC())
}

// Complete registers a lead. Status only moves from lead to registered, and a
// lead that already holds a password yields ErrLeadCompleted.
func (r *LeadRepository) Complete(ctx context.Context, id string, c LeadCompletion) (types.Lead, error) {
	if !validID(id) {
		return types.Lead{}, ErrNotFound
	}

	const query = `
		UPDATE leads
		SET first_name = $2,
			last_name = $3,
			phone = $4,
			password_hash = $5,
			capture_step = 3,
			status = CASE WHEN status = 'lead' THEN 'registered' ELSE status END,
			minutes_to_convert = CASE
				WHEN status = 'lead' THEN COALESCE(minutes_to_convert, $7)
				ELSE minutes_to_convert
			END,
			completed_at = $6,
			last_activity_at = $6,
			updated_at = $8
		WHERE id = $1 AND password_hash = ''
		RETURNING ` + leadColumns
	lead, err := r.updateLead(ctx, "complete", query,
		id, c.FirstName, c.LastName, c.Phone, c.PasswordHash, c.CompletedAt, c.MinutesToConvert, r.now().UTC())
	if !errors.Is(err, ErrNotFound) {
		return lead, err
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return types.Lead{}, getErr
	}
	return types.Lead{}, ErrLeadCompleted
}

func (r *LeadRepository) updateLead(ctx context.Context, op, query string, args ...any) (types.Lead, error) {
	lead, err := scanLead(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Lead{}, ErrNotFound
		}
		return types.Lead{}, fmt.Errorf("store: %s lead: %w", op, err)
	}
	return lead, nil
}

// List returns every lead. Conversion analytics aggregate over the full set.
func (r *LeadRepository) List(ctx context.Context) ([]types.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list leads: %w", err)
	}
	defer rows.Close()

	var leads []types.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return leads, nil
}

func (r *LeadRepository) getLead(ctx context.Context, where string, arg any) (types.Lead, error) {
	lead, err := scanLead(r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Lead{}, ErrNotFound
		}
		return types.Lead{}, fmt.Errorf("store: get lead: %w", err)
	}
	return lead, nil
}

func scanLead(row rowScanner) (types.Lead, error) {
	var lead types.Lead
	err := row.Scan(
		&lead.ID,
		&lead.Email,
		&lead.FirstName,
		&lead.LastName,
		&lead.Phone,
		&lead.PasswordHash,
		&lead.Status,
		&lead.CaptureStep,
		pq.Array(&lead.CaptureSources),
		&lead.IPAddress,
		&lead.UserAgent,
		&lead.Referrer,
		&lead.EmailVerified,
		&lead.PhoneVerified,
		&lead.MarketingOptIn,
		&lead.Conversion.InitialSource,
		&lead.Conversion.InitialTimestamp,
		&lead.Conversion.CompletionTimestamp,
		&lead.Conversion.MinutesToConvert,
		&lead.CreatedAt,
		&lead.LastActivityAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return types.Lead{}, err
	}
	if lead.CaptureSources == nil {
		lead.CaptureSources = []string{}
	}
	return lead, nil
}
