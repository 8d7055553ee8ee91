package types

import "time"

// LeadStatus is the lifecycle state of a Lead.
type LeadStatus string

const (
	LeadStatusLead       LeadStatus = "lead"
	LeadStatusRegistered LeadStatus = "registered"
	LeadStatusActive     LeadStatus = "active"
	LeadStatusInactive   LeadStatus = "inactive"
	LeadStatusBanned     LeadStatus = "banned"
)

// Converted reports whether the status counts as a completed conversion.
func (s LeadStatus) Converted() bool {
	return s == LeadStatusRegistered || s == LeadStatusActive
}

const (
	CaptureStepEmail   = 1
	CaptureStepName    = 2
	CaptureStepContact = 3
)

// Lead represents a prospective customer captured by the acquisition funnel.
// Leads are keyed by email and filled in progressively.
type Lead struct {
	// ID is the unique identifier of the lead.
	ID string `json:"id" db:"id"`

	// Email is the lower-cased email address. Unique across leads.
	Email string `json:"email" db:"email"`

	FirstName string `json:"firstName,omitempty" db:"first_name"`
	LastName  string `json:"lastName,omitempty" db:"last_name"`
	Phone     string `json:"phone,omitempty" db:"phone"`

	// PasswordHash is set when the lead completes registration.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	Status LeadStatus `json:"status" db:"status"`

	// CaptureStep is 1 (email), 2 (name) or 3 (name and phone). It never decreases.
	CaptureStep int `json:"captureStep" db:"capture_step"`

	// CaptureSources lists acquisition sources in first-seen order, without duplicates.
	CaptureSources []string `json:"captureSources" db:"capture_sources"`

	IPAddress      string `json:"-" db:"ip_address"`
	UserAgent      string `json:"-" db:"user_agent"`
	Referrer       string `json:"-" db:"referrer"`
	EmailVerified  bool   `json:"emailVerified" db:"email_verified"`
	PhoneVerified  bool   `json:"phoneVerified" db:"phone_verified"`
	MarketingOptIn bool   `json:"marketingOptIn" db:"marketing_opt_in"`

	Conversion ConversionData `json:"conversion"`

	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	LastActivityAt time.Time `json:"lastActivityAt" db:"last_activity_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// ConversionData tracks time-to-convert for a Lead.
type ConversionData struct {
	InitialSource       string     `json:"initialSource,omitempty" db:"initial_source"`
	InitialTimestamp    *time.Time `json:"initialTimestamp,omitempty" db:"initial_at"`
	CompletionTimestamp *time.Time `json:"completionTimestamp,omitempty" db:"completed_at"`

	// MinutesToConvert is computed once, when the lead becomes registered.
	MinutesToConvert *int `json:"minutesToConvert,omitempty" db:"minutes_to_convert"`
}

// HasSource reports whether source is already recorded on the lead.
func (l Lead) HasSource(source string) bool {
	for _, s := range l.CaptureSources {
		if s == source {
			return true
		}
	}
	return false
}

// ConversionReport is the funnel summary computed over all leads.
type ConversionReport struct {
	Summary       ConversionSummary      `json:"summary"`
	ByStep        []StepCount            `json:"byStep"`
	BySource      map[string]SourceStats `json:"bySource"`
	TimeToConvert *TimeToConvert         `json:"avgTimeToConvert"`
	Last30Days    []DailyConversion      `json:"last30Days"`
	GeneratedAt   time.Time              `json:"generatedAt"`
}

type ConversionSummary struct {
	TotalLeads      int    `json:"totalLeads"`
	RegisteredUsers int    `json:"registeredUsers"`
	TotalRecords    int    `json:"totalRecords"`
	ConversionRate  string `json:"conversionRate"`
}

type StepCount struct {
	Step  int `json:"step"`
	Count int `json:"count"`
}

type SourceStats struct {
	Total     int     `json:"total"`
	Converted int     `json:"converted"`
	Rate      float64 `json:"rate"`
}

type TimeToConvert struct {
	AvgMinutes float64 `json:"avgMinutes"`
	MinMinutes int     `json:"minMinutes"`
	MaxMinutes int     `json:"maxMinutes"`
}

// DailyConversion counts leads created and registrations completed on one UTC day.
type DailyConversion struct {
	Date       string `json:"date"`
	Leads      int    `json:"leads"`
	Registered int    `json:"registered"`
}
