// Package validate holds the input rules shared by the HTTP request types:
// email and disposable-domain checks, US phone normalization, password
// strength, names, usernames and birth dates.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/asaskevich/govalidator"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
	minNameLength     = 2
	maxNameLength     = 100
	maxUsernameLength = 50
	maxEmailLength    = 254
	maxSourceLength   = 50
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	sourcePattern   = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

var disposableDomains = map[string]struct{}{
	"tempmail.com":       {},
	"guerrillamail.com":  {},
	"mailinator.com":     {},
	"10minutemail.com":   {},
	"throwaway.email":    {},
	"yopmail.com":        {},
	"maildrop.cc":        {},
	"getnada.com":        {},
	"temp-mail.org":      {},
	"fakeinbox.com":      {},
	"sharklasers.com":    {},
	"guerrillamail.info": {},
}

var (
	ErrDisposableEmail = errors.New("disposable email addresses are not allowed")
	ErrInvalidPhone    = errors.New("must be a valid 10-digit US phone number")
	ErrWeakPassword    = errors.New("must contain at least one uppercase letter, one lowercase letter, and one number")
	ErrInvalidDate     = errors.New("must be a date in YYYY-MM-DD or RFC 3339 format")
)

// Email is the rule set for an email address that has already been normalized.
var Email = []validation.Rule{
	validation.Required,
	validation.Length(3, maxEmailLength),
	validation.NewStringRule(govalidator.IsEmail, "must be a valid email address"),
	validation.By(notDisposable),
}

// Password enforces length and character-class strength.
var Password = []validation.Rule{
	validation.Required,
	validation.Length(minPasswordLength, maxPasswordLength),
	validation.By(strongPassword),
}

// Username allows letters, digits and underscores only.
var Username = []validation.Rule{
	validation.Required,
	validation.Length(1, maxUsernameLength),
	validation.Match(usernamePattern).Error("can only contain letters, numbers and underscores"),
}

// Name applies to optional first and last names once trimmed.
var Name = []validation.Rule{
	validation.Length(minNameLength, maxNameLength),
}

// Source is an optional acquisition tag such as "modal" or "footer-cta".
var Source = []validation.Rule{
	validation.Length(1, maxSourceLength),
	validation.Match(sourcePattern).Error("can only contain lowercase letters, numbers, dashes and underscores"),
}

// Phone accepts anything NormalizePhone accepts.
var Phone = []validation.Rule{
	validation.By(usPhone),
}

// BirthDate accepts anything ParseDate accepts.
var BirthDate = []validation.Rule{
	validation.Required,
	validation.By(date),
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName trims a name and escapes HTML metacharacters.
func NormalizeName(name string) string {
	return html.EscapeString(strings.TrimSpace(name))
}

// NormalizePhone parses a US phone number and renders it as (XXX) XXX-XXXX.
// An empty input yields an empty output.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, "US")
	if err != nil {
		return "", ErrInvalidPhone
	}
	national := phonenumbers.GetNationalSignificantNumber(num)
	if num.GetCountryCode() != 1 || len(national) != 10 {
		return "", ErrInvalidPhone
	}
	if national[0] == '0' || national[0] == '1' {
		return "", ErrInvalidPhone
	}
	return fmt.Sprintf("(%s) %s-%s", national[0:3], national[3:6], national[6:10]), nil
}

// ParseDate reads a calendar date from YYYY-MM-DD or an RFC 3339 timestamp.
// The result is midnight UTC of the written date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// FirstMessage flattens an ozzo error into one message, picking the
// alphabetically first field so responses are stable.
func FirstMessage(err error) string {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}
	first := ""
	for field := range errs {
		if first == "" || field < first {
			first = field
		}
	}
	return fmt.Sprintf("%s: %v", first, errs[first])
}

func notDisposable(value interface{}) error {
	email := stringOf(value)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return nil
	}
	if _, ok := disposableDomains[strings.ToLower(email[at+1:])]; ok {
		return ErrDisposableEmail
	}
	return nil
}

func strongPassword(value interface{}) error {
	password := stringOf(value)
	if password == "" {
		return nil
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword
	}
	return nil
}

func usPhone(value interface{}) error {
	phone := stringOf(value)
	_, err := NormalizePhone(phone)
	return err
}

func date(value interface{}) error {
	raw := stringOf(value)
	if raw == "" {
		return nil
	}
	_, err := ParseDate(raw)
	return err
}

func stringOf(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}
