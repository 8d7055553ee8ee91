package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twelves/apiserver/types"
)

var reportNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func TestConversionReportTenLeadsFourConverted(t *testing.T) {
	statuses := []types.LeadStatus{
		types.LeadStatusRegistered, types.LeadStatusRegistered, types.LeadStatusRegistered, types.LeadStatusActive,
		types.LeadStatusLead, types.LeadStatusLead, types.LeadStatusLead, types.LeadStatusLead,
		types.LeadStatusLead, types.LeadStatusInactive,
	}
	leads := make([]types.Lead, 0, len(statuses))
	for i, s := range statuses {
		leads = append(leads, types.Lead{ID: fmt.Sprint(i), Status: s, CaptureStep: 1, CreatedAt: reportNow})
	}

	report := BuildConversionReport(leads, reportNow)
	assert.Equal(t, "40.00%", report.Summary.ConversionRate)
	assert.Equal(t, 5, report.Summary.TotalLeads)
	assert.Equal(t, 4, report.Summary.RegisteredUsers)
	assert.Equal(t, 10, report.Summary.TotalRecords)
}

func TestConversionReportEmpty(t *testing.T) {
	report := BuildConversionReport(nil, reportNow)
	assert.Equal(t, "0.00%", report.Summary.ConversionRate)
	assert.Empty(t, report.ByStep)
	assert.Empty(t, report.BySource)
	assert.Empty(t, report.Last30Days)
	assert.Nil(t, report.TimeToConvert)
	assert.Equal(t, reportNow, report.GeneratedAt)
}

func TestConversionReportBreakdowns(t *testing.T) {
	leads := []types.Lead{
		{
			Status: types.LeadStatusRegistered, CaptureStep: 3, CaptureSources: []string{"modal", "ads"},
			CreatedAt:  reportNow.Add(-48 * time.Hour),
			Conversion: types.ConversionData{MinutesToConvert: intPtr(30), CompletionTimestamp: timePtr(reportNow.Add(-24 * time.Hour))},
		},
		{
			Status: types.LeadStatusActive, CaptureStep: 3, CaptureSources: []string{"ads"},
			CreatedAt:  reportNow.Add(-48 * time.Hour),
			Conversion: types.ConversionData{MinutesToConvert: intPtr(90), CompletionTimestamp: timePtr(reportNow.Add(-1 * time.Hour))},
		},
		{
			Status: types.LeadStatusRegistered, CaptureStep: 3, CaptureSources: []string{"registration"},
			CreatedAt:  reportNow.Add(-1 * time.Hour),
			Conversion: types.ConversionData{MinutesToConvert: intPtr(0), CompletionTimestamp: timePtr(reportNow.Add(-1 * time.Hour))},
		},
		{Status: types.LeadStatusLead, CaptureStep: 2, CaptureSources: []string{"modal"}, CreatedAt: reportNow.Add(-1 * time.Hour)},
		{Status: types.LeadStatusLead, CaptureStep: 1, CaptureSources: []string{"modal"}, CreatedAt: reportNow.Add(-40 * 24 * time.Hour)},
	}

	report := BuildConversionReport(leads, reportNow)

	assert.Equal(t, []types.StepCount{{Step: 1, Count: 1}, {Step: 2, Count: 1}, {Step: 3, Count: 3}}, report.ByStep)

	assert.Equal(t, types.SourceStats{Total: 3, Converted: 1, Rate: 33.33}, report.BySource["modal"])
	assert.Equal(t, types.SourceStats{Total: 2, Converted: 2, Rate: 100}, report.BySource["ads"])
	assert.Equal(t, types.SourceStats{Total: 1, Converted: 1, Rate: 100}, report.BySource["registration"])

	require.NotNil(t, report.TimeToConvert)
	assert.Equal(t, types.TimeToConvert{AvgMinutes: 60, MinMinutes: 30, MaxMinutes: 90}, *report.TimeToConvert)

	assert.Equal(t, []types.DailyConversion{
		{Date: "2026-10-14", Leads: 2, Registered: 0},
		{Date: "2026-10-15", Leads: 0, Registered: 1},
		{Date: "2026-10-16", Leads: 2, Registered: 2},
	}, report.Last30Days)
}
