package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twelves/apiserver/internal/auth"
	"github.com/twelves/apiserver/internal/store"
	"github.com/twelves/apiserver/types"
)

// MinimumAge is the youngest age, in whole years, allowed to register.
const MinimumAge = 18

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	CreateAccount(ctx context.Context, params store.CreateAccountParams) (types.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetCredential(ctx context.Context, userID string) (types.Credential, error)
	GetProfile(ctx context.Context, id string) (types.UserProfile, error)
	List(ctx context.Context, offset, limit int) ([]types.UserProfile, int, error)
	Delete(ctx context.Context, id string) error
}

// SessionTokens issues and verifies session tokens.
type SessionTokens interface {
	IssueSession(user types.User) (string, error)
	ParseSession(token string) (auth.SessionClaims, error)
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	BirthDate time.Time
}

// LoginResult is a successful login: the user view and the signed session token.
type LoginResult struct {
	User  types.SessionUser
	Token string
}

// AccountService encapsulates registration, login and session use-cases.
type AccountService struct {
	repo   AccountRepository
	hasher auth.Hasher
	tokens SessionTokens
	now    func() time.Time
}

func NewAccountService(repo AccountRepository, hasher auth.Hasher, tokens SessionTokens) *AccountService {
	return &AccountService{repo: repo, hasher: hasher, tokens: tokens, now: time.Now}
}

// Register creates an account together with its credential, wallet and reputation.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (types.UserSummary, error) {
	if ageAt(in.BirthDate, s.now()) < MinimumAge {
		return types.UserSummary{}, ErrAgeRestriction
	}

	if err := s.ensureFree(ctx, s.repo.GetByUsername, in.Username, ErrUsernameTaken); err != nil {
		return types.UserSummary{}, err
	}
	if err := s.ensureFree(ctx, s.repo.GetByEmail, in.Email, ErrEmailTaken); err != nil {
		return types.UserSummary{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.UserSummary{}, err
	}

	profile, err := s.repo.CreateAccount(ctx, store.CreateAccountParams{
		Email:        in.Email,
		Username:     in.Username,
		BirthDate:    in.BirthDate,
		PasswordHash: hash,
	})
	switch {
	case errors.Is(err, store.ErrDuplicateUsername):
		return types.UserSummary{}, ErrUsernameTaken
	case errors.Is(err, store.ErrDuplicateEmail):
		return types.UserSummary{}, ErrEmailTaken
	case err != nil:
		return types.UserSummary{}, err
	}
	return profile.Summary(), nil
}

func (s *AccountService) ensureFree(
	ctx context.Context,
	lookup func(context.Context, string) (types.User, error),
	value string,
	taken error,
) error {
	_, err := lookup(ctx, value)
	if err == nil {
		return taken
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Login verifies an email and password pair and issues a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	cred, err := s.repo.GetCredential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrCredentialMissing
		}
		return LoginResult{}, err
	}

	if err := s.hasher.Compare(cred.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load profile: %w", err)
	}

	token, err := s.tokens.IssueSession(profile.User)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: profile.SessionUser(), Token: token}, nil
}

// ResolveSession maps a session token back to a live identity. ok is false
// when the token is invalid or the identity no longer exists; err is reserved
// for store failures.
func (s *AccountService) ResolveSession(ctx context.Context, token string) (types.SessionUser, bool, error) {
	claims, err := s.tokens.ParseSession(token)
	if err != nil {
		return types.SessionUser{}, false, nil
	}

	profile, err := s.repo.GetProfile(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.SessionUser{}, false, nil
		}
		return types.SessionUser{}, false, err
	}
	return profile.SessionUser(), true, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (types.SessionUser, error) {
	profile, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.SessionUser{}, ErrUserNotFound
		}
		return types.SessionUser{}, err
	}
	return profile.SessionUser(), nil
}

func (s *AccountService) List(ctx context.Context, offset, limit int) ([]types.SessionUser, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	profiles, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	users := make([]types.SessionUser, 0, len(profiles))
	for _, p := range profiles {
		users = append(users, p.SessionUser())
	}
	return users, total, nil
}

func (s *AccountService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// ageAt returns the age in whole years on the given day. The year count drops
// by one while the birthday has not yet come round.
func ageAt(birth, now time.Time) int {
	now = now.UTC()
	birth = birth.UTC()
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}
