package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twelves/apiserver/internal/logging"
	"github.com/twelves/apiserver/internal/services"
	"github.com/twelves/apiserver/types"
)

type stubAccounts struct {
	register func(services.RegisterInput) (types.UserSummary, error)
	login    func(email, password string) (services.LoginResult, error)
	resolve  func(token string) (types.SessionUser, bool, error)
	get      func(id string) (types.SessionUser, error)
	list     func(offset, limit int) ([]types.SessionUser, int, error)
	del      func(id string) error
}

func (s *stubAccounts) Register(_ context.Context, in services.RegisterInput) (types.UserSummary, error) {
	return s.register(in)
}

func (s *stubAccounts) Login(_ context.Context, email, password string) (services.LoginResult, error) {
	return s.login(email, password)
}

func (s *stubAccounts) ResolveSession(_ context.Context, token string) (types.SessionUser, bool, error) {
	return s.resolve(token)
}

func (s *stubAccounts) Get(_ context.Context, id string) (types.SessionUser, error) {
	return s.get(id)
}

func (s *stubAccounts) List(_ context.Context, offset, limit int) ([]types.SessionUser, int, error) {
	return s.list(offset, limit)
}

func (s *stubAccounts) Delete(_ context.Context, id string) error {
	return s.del(id)
}

type stubLeads struct {
	capture  func(services.CaptureInput) (services.CaptureResult, error)
	update   func(id string, in services.LeadUpdate) (types.Lead, error)
	complete func(services.CompleteInput) (services.CompleteResult, error)
	check    func(email string) (services.LeadStatusView, bool, error)
	rates    func() (types.ConversionReport, error)
}

func (s *stubLeads) CaptureEmail(_ context.Context, in services.CaptureInput) (services.CaptureResult, error) {
	return s.capture(in)
}

func (s *stubLeads) UpdateProgress(_ context.Context, id string, in services.LeadUpdate) (types.Lead, error) {
	return s.update(id, in)
}

func (s *stubLeads) CompleteRegistration(_ context.Context, in services.CompleteInput) (services.CompleteResult, error) {
	return s.complete(in)
}

func (s *stubLeads) CheckEmail(_ context.Context, email string) (services.LeadStatusView, bool, error) {
	return s.check(email)
}

func (s *stubLeads) ConversionRates(context.Context) (types.ConversionReport, error) {
	return s.rates()
}

var testCookie = SessionCookie{Name: "token", MaxAge: 7 * 24 * time.Hour}

func passThrough(next http.Handler) http.Handler { return next }

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var discard = logging.Discard()
