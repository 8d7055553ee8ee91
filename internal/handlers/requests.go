package handlers

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/twelves/apiserver/internal/validate"
)

type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	BirthDate string `json:"birthDate"`
}

func (r *RegisterRequest) normalize() {
	r.Email = validate.NormalizeEmail(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	r.BirthDate = strings.TrimSpace(r.BirthDate)
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validate.Email...),
		validation.Field(&r.Username, validate.Username...),
		validation.Field(&r.Password, validate.Password...),
		validation.Field(&r.BirthDate, validate.BirthDate...),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) normalize() {
	r.Email = validate.NormalizeEmail(r.Email)
}

// Validate only checks presence. Strength rules would leak which passwords
// could never have matched.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type QuickRegisterRequest struct {
	Email          string `json:"email"`
	Source         string `json:"source"`
	MarketingOptIn bool   `json:"marketingOptIn"`
}

func (r *QuickRegisterRequest) normalize() {
	r.Email = validate.NormalizeEmail(r.Email)
	r.Source = strings.ToLower(strings.TrimSpace(r.Source))
}

func (r QuickRegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validate.Email...),
		validation.Field(&r.Source, validate.Source...),
	)
}

// UpdateLeadRequest carries optional fields; absent keys stay nil.
type UpdateLeadRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
}

func (r *UpdateLeadRequest) normalize() {
	for _, field := range []*string{r.FirstName, r.LastName, r.Phone} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
}

func (r UpdateLeadRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validate.Name...),
		validation.Field(&r.LastName, validate.Name...),
		validation.Field(&r.Phone, validate.Phone...),
	)
}

type CompleteRegistrationRequest struct {
	LeadID    string `json:"leadId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

func (r *CompleteRegistrationRequest) normalize() {
	r.LeadID = strings.TrimSpace(r.LeadID)
	r.Email = validate.NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r CompleteRegistrationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LeadID, is.UUID),
		validation.Field(&r.Email, validate.Email...),
		validation.Field(&r.FirstName, append([]validation.Rule{validation.Required}, validate.Name...)...),
		validation.Field(&r.LastName, append([]validation.Rule{validation.Required}, validate.Name...)...),
		validation.Field(&r.Phone, append([]validation.Rule{validation.Required}, validate.Phone...)...),
		validation.Field(&r.Password, validate.Password...),
	)
}

type CheckEmailRequest struct {
	Email string `json:"email"`
}

func (r CheckEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validate.Email...),
	)
}
