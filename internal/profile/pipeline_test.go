package profile

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"devicewatch/internal/openfda"
)

// stubFetcher returns canned tables keyed by source and records every call.
type stubFetcher struct {
	tables  map[openfda.SourceKind]openfda.SourceTable
	calls   []openfda.SourceKind
	queries []string
	onCall  func(kind openfda.SourceKind)
}

func (s *stubFetcher) Retrieve(ctx context.Context, query string, kind openfda.SourceKind, maxRecords int) openfda.SourceTable {
	s.calls = append(s.calls, kind)
	s.queries = append(s.queries, query)
	if s.onCall != nil {
		s.onCall(kind)
	}
	return s.tables[kind]
}

func (s *stubFetcher) RetrieveQuery(ctx context.Context, search string, kind openfda.SourceKind, maxRecords int) openfda.SourceTable {
	s.calls = append(s.calls, kind)
	s.queries = append(s.queries, search)
	return s.tables[kind]
}

// recentTables mirrors acmeTables with dates inside any reasonable lookback
// window, so the pipeline's date filter keeps them.
func recentTables() map[openfda.SourceKind]openfda.SourceTable {
	day := func(ago int) string { return time.Now().AddDate(0, 0, -ago).Format("2006-01-02") }
	return map[openfda.SourceKind]openfda.SourceTable{
		openfda.SourceClearance: {
			Source: openfda.SourceClearance,
			Records: []openfda.RawRecord{{
				"k_number":      "K240001",
				"device_name":   "Acme Infusion Pump",
				"decision_date": day(60),
				"applicant":     "Acme Corp",
				"product_code":  "LZG",
			}},
		},
		openfda.SourceRecall: {
			Source: openfda.SourceRecall,
			Records: []openfda.RawRecord{{
				"event_date_initiated":  day(30),
				"recalling_firm":        "ACME CORP",
				"product_description":   "Acme Infusion Pump",
				"recall_classification": "Class II",
				"reason_for_recall":     "Battery may deplete early",
			}},
		},
		openfda.SourceEvent: {
			Source: openfda.SourceEvent,
			Records: []openfda.RawRecord{{
				"report_number":      "MW100",
				"date_received":      day(10),
				"event_type":         "Malfunction",
				"manufacturer_name":  "Acme Corp",
				"product_problems":   "Pump stopped",
				"adverse_event_flag": "Y",
			}},
		},
		openfda.SourceClassification: {
			Source: openfda.SourceClassification,
			Records: []openfda.RawRecord{{
				"device_name":                   "Infusion Pump",
				"device_class":                  "2",
				"product_code":                  "LZG",
				"regulation_number":             "880.5725",
				"medical_specialty_description": "General Hospital",
			}},
		},
	}
}

func TestPipelineRunAllSourcesInPriorityOrder(t *testing.T) {
	fetcher := &stubFetcher{tables: recentTables()}
	p := NewPipeline(fetcher, PipelineConfig{})

	res, err := p.Run(context.Background(), "acme infusion pump")
	if err != nil {
		t.Fatal(err)
	}
	if len(fetcher.calls) != len(openfda.AllSources) {
		t.Fatalf("expected every source retrieved, got %v", fetcher.calls)
	}
	for i, kind := range openfda.AllSources {
		if fetcher.calls[i] != kind {
			t.Fatalf("expected priority order %v, got %v", openfda.AllSources, fetcher.calls)
		}
	}
	if len(res.Tables) != 4 {
		t.Fatalf("expected 4 non-empty tables, got %d", len(res.Tables))
	}
	if res.Profile.RiskScore != 17 {
		t.Fatalf("expected aggregated profile, risk=%v", res.Profile.RiskScore)
	}
	if res.Summary.RegulatoryHistory.Recalls != 1 {
		t.Fatalf("expected summary derived, got %+v", res.Summary.RegulatoryHistory)
	}
	if res.Metadata.Cancelled {
		t.Fatal("expected clean completion")
	}
	if len(res.Metadata.SourcesSearched) != len(openfda.AllSources) {
		t.Fatalf("expected all sources recorded, got %v", res.Metadata.SourcesSearched)
	}
}

func TestPipelineRunEmptyQuery(t *testing.T) {
	p := NewPipeline(&stubFetcher{}, PipelineConfig{})
	if _, err := p.Run(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank query")
	}
}

func TestPipelineRunCancellationYieldsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &stubFetcher{tables: recentTables()}
	fetcher.onCall = func(kind openfda.SourceKind) {
		if kind == openfda.SourceRecall {
			cancel()
		}
	}
	p := NewPipeline(fetcher, PipelineConfig{})

	res, err := p.Run(ctx, "acme infusion pump")
	if err != nil {
		t.Fatalf("expected partial result, not error: %v", err)
	}
	if !res.Metadata.Cancelled {
		t.Fatal("expected cancelled flag set")
	}
	// the recall source completed before the cancellation check; event never ran
	if len(fetcher.calls) != 5 {
		t.Fatalf("expected retrieval to stop after cancellation, got %v", fetcher.calls)
	}
	if len(res.Profile.Recalls) != 1 {
		t.Fatal("expected accumulated tables still aggregated")
	}
	if len(res.Profile.AdverseEvents) != 0 {
		t.Fatal("expected event source skipped after cancel")
	}
}

func TestPipelineRunWithProgress(t *testing.T) {
	fetcher := &stubFetcher{tables: recentTables()}
	p := NewPipeline(fetcher, PipelineConfig{})

	var messages []string
	_, err := p.RunWithProgress(context.Background(), "acme", func(kind openfda.SourceKind, msg string) {
		messages = append(messages, fmt.Sprintf("%s|%s", kind, msg))
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != len(openfda.AllSources) {
		t.Fatalf("expected one progress call per source, got %d", len(messages))
	}
	if !strings.Contains(messages[0], string(openfda.SourceClassification)) {
		t.Fatalf("expected classification first, got %q", messages[0])
	}
}

func TestPipelineDefaults(t *testing.T) {
	p := NewPipeline(&stubFetcher{}, PipelineConfig{})
	if p.cfg.MaxRecordsPerSource != DefaultMaxRecordsPerSource {
		t.Fatalf("expected default budget, got %d", p.cfg.MaxRecordsPerSource)
	}
	if p.cfg.LookbackMonths != DefaultLookbackMonths {
		t.Fatalf("expected default lookback, got %d", p.cfg.LookbackMonths)
	}
}
