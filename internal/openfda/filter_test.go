package openfda

import (
	"testing"
	"time"
)

func windowTable(kind SourceKind, field string, dates ...string) SourceTable {
	table := SourceTable{Source: kind, Query: "acme"}
	for _, d := range dates {
		table.Records = append(table.Records, RawRecord{field: d})
	}
	return table
}

func TestFilterByWindowKeepsRecentRecords(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	table := windowTable(SourceRecall, "event_date_initiated",
		"2024-05-20", "2024-01-15", "2022-03-01")

	out := filterByWindowAt(table, SourceRecall, 6, now)
	if len(out.Records) != 2 {
		t.Fatalf("expected 2 records inside the window, got %d", len(out.Records))
	}
	for _, rec := range out.Records {
		if rec.String("event_date_initiated") == "2022-03-01" {
			t.Fatal("expected stale record excluded")
		}
	}
}

func TestFilterByWindowCutoffInclusive(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cutoff := now.Add(-6 * 30 * 24 * time.Hour)
	table := windowTable(SourceRecall, "event_date_initiated", cutoff.Format("2006-01-02"))

	out := filterByWindowAt(table, SourceRecall, 6, now)
	if len(out.Records) != 1 {
		t.Fatal("expected record on the cutoff instant kept")
	}
}

func TestFilterByWindowExcludesUnparseableDates(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	table := windowTable(SourceRecall, "event_date_initiated", "2024-05-20", "pending", "")

	out := filterByWindowAt(table, SourceRecall, 6, now)
	if len(out.Records) != 1 {
		t.Fatalf("expected undated records excluded, got %d", len(out.Records))
	}
}

func TestFilterByWindowUndatedSourcesPassThrough(t *testing.T) {
	table := windowTable(SourceClassification, "device_name", "Infusion Pump")
	out := FilterByWindow(table, SourceClassification, 6)
	if len(out.Records) != 1 {
		t.Fatal("expected classification records untouched")
	}
	out = FilterByWindow(windowTable(SourceUDI, "brand_name", "Acme"), SourceUDI, 6)
	if len(out.Records) != 1 {
		t.Fatal("expected udi records untouched")
	}
}

func TestFilterByWindowZeroMonthsPassThrough(t *testing.T) {
	table := windowTable(SourceRecall, "event_date_initiated", "1999-01-01")
	out := FilterByWindow(table, SourceRecall, 0)
	if len(out.Records) != 1 {
		t.Fatal("expected months<=0 to disable filtering")
	}
}

func TestFilterByWindowIdempotent(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	table := windowTable(SourceEvent, "date_received", "20240520", "20230101")

	once := filterByWindowAt(table, SourceEvent, 6, now)
	twice := filterByWindowAt(once, SourceEvent, 6, now)
	if len(once.Records) != len(twice.Records) {
		t.Fatalf("expected idempotent filtering, got %d then %d", len(once.Records), len(twice.Records))
	}
}
