package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/twelves/apiserver/types"
)

const (
	reportWindow = 30 * 24 * time.Hour
	dayLayout    = time.DateOnly
)

// BuildConversionReport aggregates funnel statistics over leads as of now.
// A lead contributes to every source it was captured from.
func BuildConversionReport(leads []types.Lead, now time.Time) types.ConversionReport {
	now = now.UTC()
	report := types.ConversionReport{
		ByStep:      []types.StepCount{},
		BySource:    map[string]types.SourceStats{},
		Last30Days:  []types.DailyConversion{},
		GeneratedAt: now,
	}

	steps := map[int]int{}
	days := map[string]*types.DailyConversion{}
	since := now.Add(-reportWindow)
	day := func(t time.Time) *types.DailyConversion {
		key := t.UTC().Format(dayLayout)
		d, ok := days[key]
		if !ok {
			d = &types.DailyConversion{Date: key}
			days[key] = d
		}
		return d
	}

	var (
		minutesSum   int
		minutesCount int
		ttc          types.TimeToConvert
	)

	for _, lead := range leads {
		converted := lead.Status.Converted()
		switch {
		case lead.Status == types.LeadStatusLead:
			report.Summary.TotalLeads++
		case converted:
			report.Summary.RegisteredUsers++
		}
		steps[lead.CaptureStep]++

		for _, source := range lead.CaptureSources {
			stats := report.BySource[source]
			stats.Total++
			if converted {
				stats.Converted++
			}
			report.BySource[source] = stats
		}

		if m := lead.Conversion.MinutesToConvert; m != nil && *m > 0 {
			if minutesCount == 0 || *m < ttc.MinMinutes {
				ttc.MinMinutes = *m
			}
			if *m > ttc.MaxMinutes {
				ttc.MaxMinutes = *m
			}
			minutesSum += *m
			minutesCount++
		}

		if !lead.CreatedAt.Before(since) {
			day(lead.CreatedAt).Leads++
		}
		if done := lead.Conversion.CompletionTimestamp; done != nil && !done.Before(since) {
			day(*done).Registered++
		}
	}

	report.Summary.TotalRecords = len(leads)
	report.Summary.ConversionRate = fmt.Sprintf("%.2f%%", percent(report.Summary.RegisteredUsers, len(leads)))

	for step, count := range steps {
		report.ByStep = append(report.ByStep, types.StepCount{Step: step, Count: count})
	}
	sort.Slice(report.ByStep, func(i, j int) bool { return report.ByStep[i].Step < report.ByStep[j].Step })

	for source, stats := range report.BySource {
		stats.Rate = math.Round(percent(stats.Converted, stats.Total)*100) / 100
		report.BySource[source] = stats
	}

	if minutesCount > 0 {
		ttc.AvgMinutes = math.Round(float64(minutesSum)/float64(minutesCount)*100) / 100
		report.TimeToConvert = &ttc
	}

	for _, d := range days {
		report.Last30Days = append(report.Last30Days, *d)
	}
	sort.Slice(report.Last30Days, func(i, j int) bool { return report.Last30Days[i].Date < report.Last30Days[j].Date })

	return report
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
