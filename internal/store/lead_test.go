package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twelves/apiserver/types"
)

const leadID = "0b8f7c1e-4a52-4c8e-9a51-1f2d3c4b5a69"

var leadCols = []string{"id", "email", "first_name", "last_name", "phone", "password_hash", "status",
	"capture_step", "capture_sources", "ip_address", "user_agent", "referrer", "email_verified",
	"phone_verified", "marketing_opt_in", "initial_source", "initial_at", "completed_at",
	"minutes_to_convert", "created_at", "last_activity_at", "updated_at"}

func newLeadRepo(t *testing.T) (*LeadRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewLeadRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestLeadCreateFillsDefaults(t *testing.T) {
	repo, mock := newLeadRepo(t)

	mock.ExpectExec("INSERT INTO leads").WillReturnResult(sqlmock.NewResult(0, 1))

	lead, err := repo.Create(context.Background(), types.Lead{
		Email:       "a@b.com",
		Status:      types.LeadStatusLead,
		CaptureStep: types.CaptureStepEmail,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, fixedNow, lead.CreatedAt)
	assert.Equal(t, fixedNow, lead.LastActivityAt)
	assert.Equal(t, []string{}, lead.CaptureSources)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadCreateDuplicateEmail(t *testing.T) {
	repo, mock := newLeadRepo(t)

	mock.ExpectExec("INSERT INTO leads").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "leads_email_key"})

	_, err := repo.Create(context.Background(), types.Lead{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLeadGetByIDScansSources(t *testing.T) {
	repo, mock := newLeadRepo(t)
	initial := fixedNow.Add(-2 * time.Hour)

	mock.ExpectQuery("FROM leads WHERE id = \\$1").
		WithArgs(leadID).
		WillReturnRows(sqlmock.NewRows(leadCols).AddRow(
			leadID, "a@b.com", "Ann", "", "", "", "lead",
			int64(2), "{modal,ads}", "10.0.0.1", "curl", "", false,
			false, true, "modal", initial, nil,
			nil, initial, fixedNow, fixedNow,
		))

	lead, err := repo.GetByID(context.Background(), leadID)
	require.NoError(t, err)
	assert.Equal(t, types.LeadStatusLead, lead.Status)
	assert.Equal(t, 2, lead.CaptureStep)
	assert.Equal(t, []string{"modal", "ads"}, lead.CaptureSources)
	assert.True(t, lead.MarketingOptIn)
	require.NotNil(t, lead.Conversion.InitialTimestamp)
	assert.Equal(t, initial, *lead.Conversion.InitialTimestamp)
	assert.Nil(t, lead.Conversion.CompletionTimestamp)
	assert.Nil(t, lead.Conversion.MinutesToConvert)
}

func TestLeadGetByIDRejectsMalformedID(t *testing.T) {
	repo, mock := newLeadRepo(t)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadGetByEmailNotFound(t *testing.T) {
	repo, mock := newLeadRepo(t)
	mock.ExpectQuery("FROM leads WHERE email = \\$1").
		WithArgs("x@y.com").
		WillReturnRows(sqlmock.NewRows(leadCols))

	_, err := repo.GetByEmail(context.Background(), "x@y.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func stringPtr(s string) *string { return &s }

func leadRow(status string, step int64, hash string, minutes any) *sqlmock.Rows {
	initial := fixedNow.Add(-time.Hour)
	return sqlmock.NewRows(leadCols).AddRow(
		leadID, "a@b.com", "Ann", "Lee", "(415) 555-2671", hash, status,
		step, "{modal,footer}", "", "", "", false,
		false, false, "modal", initial, nil,
		minutes, initial, fixedNow, fixedNow,
	)
}

func TestLeadTouchAppendsSourceInPlace(t *testing.T) {
	repo, mock := newLeadRepo(t)
	at := fixedNow.Add(-time.Minute)

	mock.ExpectQuery(`UPDATE leads\s+SET capture_sources = CASE\s+WHEN \$2 = ANY\(capture_sources\)`).
		WithArgs(leadID, "footer", at, fixedNow).
		WillReturnRows(leadRow("registered", 3, "hash", int64(12)))

	lead, err := repo.Touch(context.Background(), leadID, "footer", at)
	require.NoError(t, err)
	assert.Equal(t, []string{"modal", "footer"}, lead.CaptureSources)
	assert.Equal(t, types.LeadStatusRegistered, lead.Status)
	assert.Equal(t, 3, lead.CaptureStep)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadTouchMissing(t *testing.T) {
	repo, mock := newLeadRepo(t)
	mock.ExpectQuery("UPDATE leads").WillReturnRows(sqlmock.NewRows(leadCols))

	_, err := repo.Touch(context.Background(), leadID, "ads", fixedNow)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Touch(context.Background(), "bogus", "ads", fixedNow)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadProgressKeepsAbsentFields(t *testing.T) {
	repo, mock := newLeadRepo(t)

	mock.ExpectQuery(`SET first_name = COALESCE\(\$2, first_name\)(.|\s)+capture_step = GREATEST\(capture_step,`).
		WithArgs(leadID, "Ann", nil, nil, fixedNow, fixedNow).
		WillReturnRows(leadRow("lead", 3, "", nil))

	lead, err := repo.Progress(context.Background(), leadID, LeadProgress{FirstName: stringPtr("Ann"), At: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, 3, lead.CaptureStep)
	assert.Equal(t, "Lee", lead.LastName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadProgressMissing(t *testing.T) {
	repo, mock := newLeadRepo(t)
	mock.ExpectQuery("UPDATE leads").WillReturnRows(sqlmock.NewRows(leadCols))

	_, err := repo.Progress(context.Background(), leadID, LeadProgress{At: fixedNow})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeadCompleteOnlyOnce(t *testing.T) {
	repo, mock := newLeadRepo(t)
	completed := fixedNow.Add(-time.Second)
	minutes := 60

	mock.ExpectQuery(`status = CASE WHEN status = 'lead' THEN 'registered' ELSE status END(.|\s)+WHERE id = \$1 AND password_hash = ''`).
		WithArgs(leadID, "Ann", "Lee", "(415) 555-2671", "hash", completed, int64(60), fixedNow).
		WillReturnRows(leadRow("registered", 3, "hash", int64(60)))

	lead, err := repo.Complete(context.Background(), leadID, LeadCompletion{
		FirstName:        "Ann",
		LastName:         "Lee",
		Phone:            "(415) 555-2671",
		PasswordHash:     "hash",
		CompletedAt:      completed,
		MinutesToConvert: &minutes,
	})
	require.NoError(t, err)
	assert.Equal(t, types.LeadStatusRegistered, lead.Status)
	require.NotNil(t, lead.Conversion.MinutesToConvert)
	assert.Equal(t, 60, *lead.Conversion.MinutesToConvert)

	// A second completion matches no row while the lead still exists.
	mock.ExpectQuery("UPDATE leads").WillReturnRows(sqlmock.NewRows(leadCols))
	mock.ExpectQuery("FROM leads WHERE id = \\$1").
		WithArgs(leadID).
		WillReturnRows(leadRow("registered", 3, "hash", int64(60)))

	_, err = repo.Complete(context.Background(), leadID, LeadCompletion{PasswordHash: "other", CompletedAt: fixedNow})
	assert.ErrorIs(t, err, ErrLeadCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadCompleteMissing(t *testing.T) {
	repo, mock := newLeadRepo(t)
	mock.ExpectQuery("UPDATE leads").WillReturnRows(sqlmock.NewRows(leadCols))
	mock.ExpectQuery("FROM leads WHERE id = \\$1").WillReturnRows(sqlmock.NewRows(leadCols))

	_, err := repo.Complete(context.Background(), leadID, LeadCompletion{PasswordHash: "hash", CompletedAt: fixedNow})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadList(t *testing.T) {
	repo, mock := newLeadRepo(t)
	mock.ExpectQuery("FROM leads ORDER BY created_at, id").
		WillReturnRows(sqlmock.NewRows(leadCols).
			AddRow(leadID, "a@b.com", "", "", "", "", "registered",
				int64(3), "{}", "", "", "", false,
				false, false, "registration", fixedNow, fixedNow,
				int64(0), fixedNow, fixedNow, fixedNow))

	leads, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, []string{}, leads[0].CaptureSources)
	require.NotNil(t, leads[0].Conversion.MinutesToConvert)
	assert.Equal(t, 0, *leads[0].Conversion.MinutesToConvert)
}
