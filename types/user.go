package types

import "time"

const (
	// WelcomeBonusCoins is credited to every new wallet.
	WelcomeBonusCoins int64 = 100

	// DefaultReliability is the reputation score of a new account, and the score
	// reported for an account whose reputation row is missing.
	DefaultReliability = 100
)

// User represents a registered account in the system.
// It contains identity, verification state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Email is the user's email address. Unique across users.
	Email string `json:"email" db:"email"`

	// Username is the unique public handle chosen by the user.
	Username string `json:"username" db:"username"`

	// BirthDate is the calendar date of birth used for the age gate.
	BirthDate time.Time `json:"birth_date" db:"birth_date"`

	// ExternalID is reserved for an external identity provider subject.
	// It is never set by local registration.
	ExternalID *string `json:"-" db:"external_id"`

	// EmailVerified reports whether the email address has been confirmed.
	EmailVerified bool `json:"email_verified" db:"email_verified"`

	// TermsAcceptedAt is the moment the user accepted the terms at sign-up.
	TermsAcceptedAt time.Time `json:"terms_accepted_at" db:"terms_accepted_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Credential stores the password hash backing a User.
// This type is never exposed in API responses.
type Credential struct {
	UserID       string    `json:"-" db:"user_id"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"-" db:"created_at"`
}

// Wallet holds the coin balance of a User.
type Wallet struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Coins  int64  `json:"coins" db:"coins"`
}

// Reputation holds the reliability score of a User.
type Reputation struct {
	ID          string `json:"id" db:"id"`
	UserID      string `json:"user_id" db:"user_id"`
	Reliability int    `json:"reliability" db:"reliability"`
}

// UserSummary is the non-sensitive projection returned by registration.
type UserSummary struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SessionUser is the identity resolved from a session token, together with
// the current wallet balance and reputation score.
type SessionUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	EmailVerified bool   `json:"emailVerified"`
	Coins         int64  `json:"coins"`
	Reputation    int    `json:"reputation"`
}

// UserProfile is a User joined with its dependent records. Wallet and
// Reputation are nil when the row is absent.
type UserProfile struct {
	User
	Wallet     *Wallet     `json:"wallet"`
	Reputation *Reputation `json:"reputation"`
}

// Summary strips a User down to its public fields.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// SessionUser flattens a profile, applying the defaults for missing dependents.
func (p UserProfile) SessionUser() SessionUser {
	su := SessionUser{
		ID:            p.ID,
		Email:         p.Email,
		Username:      p.Username,
		EmailVerified: p.EmailVerified,
		Reputation:    DefaultReliability,
	}
	if p.Wallet != nil {
		su.Coins = p.Wallet.Coins
	}
	if p.Reputation != nil {
		su.Reputation = p.Reputation.Reliability
	}
	return su
}
