package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/twelves/apiserver/types"
)

const reportKeyLayout = "20060102T150405Z"

// ReportStore is the object storage a ReportExporter writes to.
type ReportStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReportExporter snapshots conversion reports into object storage.
type ReportExporter struct {
	leads  *LeadService
	store  ReportStore
	prefix string
}

func NewReportExporter(leads *LeadService, store ReportStore, prefix string) *ReportExporter {
	return &ReportExporter{leads: leads, store: store, prefix: prefix}
}

// Export builds the current report and uploads it as JSON. It returns the
// object key written.
func (e *ReportExporter) Export(ctx context.Context) (string, types.ConversionReport, error) {
	report, err := e.leads.ConversionRates(ctx)
	if err != nil {
		return "", types.ConversionReport{}, err
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", types.ConversionReport{}, fmt.Errorf("encode report: %w", err)
	}

	key := path.Join(e.prefix, report.GeneratedAt.Format(reportKeyLayout)+".json")
	if err := e.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return "", types.ConversionReport{}, err
	}
	return key, report, nil
}

// Fetch reads back a previously exported report.
func (e *ReportExporter) Fetch(ctx context.Context, key string) (types.ConversionReport, error) {
	rc, err := e.store.Get(ctx, key)
	if err != nil {
		return types.ConversionReport{}, err
	}
	defer rc.Close()

	var report types.ConversionReport
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return types.ConversionReport{}, fmt.Errorf("decode report %s: %w", key, err)
	}
	return report, nil
}
