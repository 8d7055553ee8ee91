package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twelves/apiserver/internal/auth"
	"github.com/twelves/apiserver/internal/store"
	"github.com/twelves/apiserver/types"
)

// fakeAccounts keeps accounts in memory. failOn names a dependent record
// ("credential", "wallet", "reputation") whose write fails, to exercise
// all-or-nothing creation.
type fakeAccounts struct {
	mu          sync.Mutex
	users       map[string]types.User
	credentials map[string]types.Credential
	wallets     map[string]types.Wallet
	reputations map[string]types.Reputation
	failOn      string
	getErr      error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:       map[string]types.User{},
		credentials: map[string]types.Credential{},
		wallets:     map[string]types.Wallet{},
		reputations: map[string]types.Reputation{},
	}
}

var errInjected = errors.New("injected write failure")

func (f *fakeAccounts) CreateAccount(_ context.Context, p store.CreateAccountParams) (types.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Username == p.Username {
			return types.UserProfile{}, store.ErrDuplicateUsername
		}
		if u.Email == p.Email {
			return types.UserProfile{}, store.ErrDuplicateEmail
		}
	}

	now := time.Now().UTC()
	user := types.User{ID: uuid.NewString(), Email: p.Email, Username: p.Username, BirthDate: p.BirthDate,
		TermsAcceptedAt: now, CreatedAt: now, UpdatedAt: now}
	cred := types.Credential{UserID: user.ID, PasswordHash: p.PasswordHash, CreatedAt: now}
	wallet := types.Wallet{ID: uuid.NewString(), UserID: user.ID, Coins: types.WelcomeBonusCoins}
	rep := types.Reputation{ID: uuid.NewString(), UserID: user.ID, Reliability: types.DefaultReliability}

	// Stage every write and only publish them together.
	for _, step := range []string{"credential", "wallet", "reputation"} {
		if f.failOn == step {
			return types.UserProfile{}, errInjected
		}
	}
	f.users[user.ID] = user
	f.credentials[user.ID] = cred
	f.wallets[user.ID] = wallet
	f.reputations[user.ID] = rep
	return types.UserProfile{User: user, Wallet: &wallet, Reputation: &rep}, nil
}

func (f *fakeAccounts) find(match func(types.User) bool) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return types.User{}, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (types.User, error) {
	return f.find(func(u types.User) bool { return u.Email == email })
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (types.User, error) {
	return f.find(func(u types.User) bool { return u.Username == username })
}

func (f *fakeAccounts) GetCredential(_ context.Context, userID string) (types.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.credentials[userID]
	if !ok {
		return types.Credential{}, store.ErrNotFound
	}
	return cred, nil
}

func (f *fakeAccounts) GetProfile(_ context.Context, id string) (types.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return types.UserProfile{}, f.getErr
	}
	user, ok := f.users[id]
	if !ok {
		return types.UserProfile{}, store.ErrNotFound
	}
	profile := types.UserProfile{User: user}
	if w, ok := f.wallets[id]; ok {
		profile.Wallet = &w
	}
	if r, ok := f.reputations[id]; ok {
		profile.Reputation = &r
	}
	return profile, nil
}

func (f *fakeAccounts) List(ctx context.Context, offset, limit int) ([]types.UserProfile, int, error) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	sort.Strings(ids)

	total := len(ids)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	profiles := make([]types.UserProfile, 0, end-offset)
	for _, id := range ids[offset:end] {
		p, _ := f.GetProfile(ctx, id)
		profiles = append(profiles, p)
	}
	return profiles, total, nil
}

func (f *fakeAccounts) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	delete(f.credentials, id)
	delete(f.wallets, id)
	delete(f.reputations, id)
	return nil
}

func (f *fakeAccounts) count() (users, creds, wallets, reps int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), len(f.credentials), len(f.wallets), len(f.reputations)
}

// fakeLeads keeps leads in memory keyed by id with a unique email index.
// Its write operations mirror the column-level semantics of the SQL store.
type fakeLeads struct {
	mu       sync.Mutex
	leads    map[string]types.Lead
	creates  int
	writes   int
	raceWith *types.Lead
	// beforeWrite runs once ahead of the next Touch, Progress or Complete,
	// after the caller has already read the lead.
	beforeWrite func()
}

func newFakeLeads() *fakeLeads {
	return &fakeLeads{leads: map[string]types.Lead{}}
}

func cloneLead(l types.Lead) types.Lead {
	l.CaptureSources = append([]string{}, l.CaptureSources...)
	return l
}

func (f *fakeLeads) GetByID(_ context.Context, id string) (types.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return types.Lead{}, store.ErrNotFound
	}
	return cloneLead(l), nil
}

func (f *fakeLeads) GetByEmail(_ context.Context, email string) (types.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leads {
		if l.Email == email {
			return cloneLead(l), nil
		}
	}
	return types.Lead{}, store.ErrNotFound
}

func (f *fakeLeads) Create(_ context.Context, lead types.Lead) (types.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// raceWith simulates a concurrent insert landing between lookup and create.
	if f.raceWith != nil {
		racer := cloneLead(*f.raceWith)
		f.leads[racer.ID] = racer
		f.raceWith = nil
	}
	for _, l := range f.leads {
		if l.Email == lead.Email {
			return types.Lead{}, store.ErrDuplicateEmail
		}
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	lead.UpdatedAt = lead.CreatedAt
	f.leads[lead.ID] = cloneLead(lead)
	f.creates++
	return cloneLead(lead), nil
}

func (f *fakeLeads) interleave() {
	f.mu.Lock()
	hook := f.beforeWrite
	f.beforeWrite = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeLeads) write(id string, apply func(*types.Lead) error) (types.Lead, error) {
	f.interleave()
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return types.Lead{}, store.ErrNotFound
	}
	if err := apply(&l); err != nil {
		return types.Lead{}, err
	}
	f.leads[id] = cloneLead(l)
	f.writes++
	return cloneLead(l), nil
}

func (f *fakeLeads) Touch(_ context.Context, id, source string, at time.Time) (types.Lead, error) {
	return f.write(id, func(l *types.Lead) error {
		if !l.HasSource(source) {
			l.CaptureSources = append(l.CaptureSources, source)
		}
		l.LastActivityAt = at
		l.UpdatedAt = at
		return nil
	})
}

func (f *fakeLeads) Progress(_ context.Context, id string, p store.LeadProgress) (types.Lead, error) {
	return f.write(id, func(l *types.Lead) error {
		if p.FirstName != nil {
			l.FirstName = *p.FirstName
		}
		if p.LastName != nil {
			l.LastName = *p.LastName
		}
		if p.Phone != nil {
			l.Phone = *p.Phone
		}
		l.CaptureStep = max(l.CaptureStep, captureStep(*l))
		l.LastActivityAt = p.At
		l.UpdatedAt = p.At
		return nil
	})
}

func (f *fakeLeads) Complete(_ context.Context, id string, c store.LeadCompletion) (types.Lead, error) {
	return f.write(id, func(l *types.Lead) error {
		if l.PasswordHash != "" {
			return store.ErrLeadCompleted
		}
		l.FirstName, l.LastName, l.Phone = c.FirstName, c.LastName, c.Phone
		l.PasswordHash = c.PasswordHash
		l.CaptureStep = types.CaptureStepContact
		if l.Status == types.LeadStatusLead {
			l.Status = types.LeadStatusRegistered
			if l.Conversion.MinutesToConvert == nil {
				l.Conversion.MinutesToConvert = c.MinutesToConvert
			}
		}
		completed := c.CompletedAt
		l.Conversion.CompletionTimestamp = &completed
		l.LastActivityAt = completed
		l.UpdatedAt = completed
		return nil
	})
}

func captureStep(l types.Lead) int {
	named := l.FirstName != "" && l.LastName != ""
	switch {
	case named && l.Phone != "":
		return types.CaptureStepContact
	case named:
		return types.CaptureStepName
	default:
		return types.CaptureStepEmail
	}
}

func (f *fakeLeads) List(context.Context) ([]types.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Lead, 0, len(f.leads))
	for _, l := range f.leads {
		out = append(out, cloneLead(l))
	}
	return out, nil
}

func (f *fakeLeads) put(l types.Lead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads[l.ID] = cloneLead(l)
}

func (f *fakeLeads) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.leads)
}

type trackedEvent struct {
	entityID string
	event    string
	payload  map[string]any
}

type recordingSink struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (s *recordingSink) Track(_ context.Context, entityID, event string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, trackedEvent{entityID: entityID, event: event, payload: payload})
}

func (s *recordingSink) last() trackedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return trackedEvent{}
	}
	return s.events[len(s.events)-1]
}

// plainHasher avoids bcrypt cost in tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return auth.ErrPasswordMismatch
	}
	return nil
}

const testSecret = "test-secret"

func newTokens() *auth.TokenIssuer {
	return auth.NewTokenIssuer(testSecret, 7*24*time.Hour, 30*24*time.Hour)
}
