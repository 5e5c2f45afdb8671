package openfda

import (
	"strings"
	"testing"
)

func TestBuildQueriesMultiWord(t *testing.T) {
	queries := BuildQueries("Acme Infusion Pump", SourceClearance)
	if len(queries) != MaxStrategies {
		t.Fatalf("expected %d strategies, got %d: %v", MaxStrategies, len(queries), queries)
	}
	if !strings.Contains(queries[0], "device_name:acme AND device_name:infusion AND device_name:pump") {
		t.Fatalf("expected conjunctive strategy first, got %q", queries[0])
	}
	if !strings.Contains(queries[0], "applicant:acme AND applicant:infusion AND applicant:pump") {
		t.Fatalf("expected conjunctive clause per field, got %q", queries[0])
	}
	if queries[1] != "(device_name:acme OR applicant:acme)" {
		t.Fatalf("expected per-word strategy for first word, got %q", queries[1])
	}
	if queries[2] != "(device_name:infusion OR applicant:infusion)" {
		t.Fatalf("expected per-word strategy for second word, got %q", queries[2])
	}
}

func TestBuildQueriesSkipsShortWords(t *testing.T) {
	queries := BuildQueries("xr 7 pump", SourceClearance)
	for _, q := range queries[1:] {
		if strings.Contains(q, ":xr") || strings.Contains(q, ":7") {
			t.Fatalf("expected short words skipped in per-word strategies, got %q", q)
		}
	}
}

func TestBuildQueriesSingleWord(t *testing.T) {
	queries := BuildQueries("Defibrillator", SourceApproval)
	if len(queries) != 2 {
		t.Fatalf("expected per-word plus exact phrase, got %d: %v", len(queries), queries)
	}
	want := "(trade_name:defibrillator OR generic_name:defibrillator OR applicant:defibrillator)"
	if queries[0] != want || queries[1] != want {
		t.Fatalf("unexpected single-word strategies: %v", queries)
	}
}

func TestBuildQueriesEmptyInputs(t *testing.T) {
	if got := BuildQueries("   ", SourceRecall); got != nil {
		t.Fatalf("expected nil for blank query, got %v", got)
	}
	if got := BuildQueries("pump", SourceKind("bogus")); got != nil {
		t.Fatalf("expected nil for unknown source, got %v", got)
	}
}

func TestBuildQueriesCapAndNonEmptyTerms(t *testing.T) {
	for _, kind := range AllSources {
		queries := BuildQueries("cardiac monitor lead system", kind)
		if len(queries) == 0 || len(queries) > MaxStrategies {
			t.Fatalf("%s: expected 1..%d strategies, got %d", kind, MaxStrategies, len(queries))
		}
		for _, q := range queries {
			if strings.Contains(q, ": ") || strings.Contains(q, ":)") {
				t.Fatalf("%s: empty search term in %q", kind, q)
			}
		}
	}
}
