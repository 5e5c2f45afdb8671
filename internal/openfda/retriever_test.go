package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testRetriever(srv *httptest.Server) *Retriever {
	return NewRetriever(RetrieverConfig{
		BaseURL:    srv.URL,
		RateDelay:  time.Millisecond,
		HTTPClient: srv.Client(),
	})
}

func resultsPayload(n int) string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"k_number":"K24%04d","device_name":"Acme Pump","decision_date":"2024-01-15"}`, i))
	}
	return `{"results":[` + strings.Join(items, ",") + `]}`
}

func TestRetrieveBudgetShortCircuitSkipsRemainingStrategies(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resultsPayload(45)))
	}))
	defer srv.Close()

	table := testRetriever(srv).Retrieve(context.Background(), "acme pump", SourceClearance, 50)
	if len(table.Records) != 45 {
		t.Fatalf("expected 45 records, got %d", len(table.Records))
	}
	if calls != 1 {
		t.Fatalf("expected first strategy alone to meet the budget (1 call), got %d", calls)
	}
}

func TestRetrieveTriesAllStrategiesBelowBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resultsPayload(2)))
	}))
	defer srv.Close()

	table := testRetriever(srv).Retrieve(context.Background(), "acme pump", SourceClearance, 50)
	if calls != 3 {
		t.Fatalf("expected one call per strategy, got %d", calls)
	}
	if len(table.Records) != 6 {
		t.Fatalf("expected 6 accumulated records, got %d", len(table.Records))
	}
}

func TestRetrieveQueryPaginates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch idx {
		case 1:
			if r.URL.Query().Get("skip") != "" {
				t.Errorf("expected no skip on first page, got %q", r.URL.Query().Get("skip"))
			}
			_, _ = w.Write([]byte(resultsPayload(100)))
		case 2:
			if r.URL.Query().Get("skip") != "100" {
				t.Errorf("expected skip=100 on second page, got %q", r.URL.Query().Get("skip"))
			}
			_, _ = w.Write([]byte(resultsPayload(100)))
		default:
			if r.URL.Query().Get("limit") != "50" {
				t.Errorf("expected final page limited to remaining budget, got %q", r.URL.Query().Get("limit"))
			}
			_, _ = w.Write([]byte(resultsPayload(50)))
		}
	}))
	defer srv.Close()

	table := testRetriever(srv).RetrieveQuery(context.Background(), "device_name:pump", SourceClearance, 250)
	if calls != 3 {
		t.Fatalf("expected 3 pages, got %d", calls)
	}
	if len(table.Records) != 250 {
		t.Fatalf("expected the full budget, got %d records", len(table.Records))
	}
}

func TestRetrieveStopsStrategyOnShortPage(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resultsPayload(7)))
	}))
	defer srv.Close()

	table := testRetriever(srv).RetrieveQuery(context.Background(), "device_name:pump", SourceClearance, 500)
	if calls != 1 {
		t.Fatalf("expected a short page to end pagination, got %d calls", calls)
	}
	if len(table.Records) != 7 {
		t.Fatalf("expected 7 records, got %d", len(table.Records))
	}
}

func TestRetrieveNotFoundIsZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND"}}`))
	}))
	defer srv.Close()

	table := testRetriever(srv).Retrieve(context.Background(), "nonexistent device", SourceRecall, 100)
	if !table.Empty() {
		t.Fatalf("expected empty table for 404, got %d records", len(table.Records))
	}
}

func TestRetrieveToleratesMalformedPages(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if idx == 1 {
			_, _ = w.Write([]byte(`{"results": [truncated`))
			return
		}
		_, _ = w.Write([]byte(resultsPayload(3)))
	}))
	defer srv.Close()

	table := testRetriever(srv).Retrieve(context.Background(), "acme pump", SourceClearance, 100)
	if calls != 3 {
		t.Fatalf("expected malformed page to end one strategy only, got %d calls", calls)
	}
	if len(table.Records) != 6 {
		t.Fatalf("expected remaining strategies to contribute, got %d records", len(table.Records))
	}
}

func TestRetrieveServerErrorDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	table := testRetriever(srv).Retrieve(context.Background(), "acme pump", SourceClearance, 100)
	if !table.Empty() {
		t.Fatalf("expected empty table on server errors, got %d records", len(table.Records))
	}
}

func TestRetrieveCancelledContextReturnsAccumulated(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			cancel()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resultsPayload(2)))
	}))
	defer srv.Close()

	table := testRetriever(srv).Retrieve(ctx, "acme pump", SourceClearance, 100)
	if calls != 2 {
		t.Fatalf("expected cancellation to stop the strategy loop, got %d calls", calls)
	}
	if len(table.Records) != 2 {
		t.Fatalf("expected accumulated records preserved on cancel, got %d", len(table.Records))
	}
}

func TestRetrieveUnknownSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("expected no request for an unknown source")
	}))
	defer srv.Close()

	table := testRetriever(srv).Retrieve(context.Background(), "pump", SourceKind("bogus"), 100)
	if !table.Empty() {
		t.Fatal("expected empty table for unknown source")
	}
}

func TestFetchPageRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("sort"); got != "decision_date:desc" {
			t.Errorf("expected most-recent-first sort, got %q", got)
		}
		if got := q.Get("api_key"); got != "secret" {
			t.Errorf("expected api key forwarded, got %q", got)
		}
		if got := q.Get("limit"); got != "100" {
			t.Errorf("expected page size cap, got %q", got)
		}
		if !strings.HasPrefix(r.URL.Path, "/device/510k.json") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resultsPayload(1)))
	}))
	defer srv.Close()

	r := NewRetriever(RetrieverConfig{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		RateDelay:  time.Millisecond,
		HTTPClient: srv.Client(),
	})
	table := r.RetrieveQuery(context.Background(), "device_name:pump", SourceClearance, 500)
	if len(table.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(table.Records))
	}
}

func TestCountTrend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("count"); got != "event_date_initiated" {
			t.Errorf("expected count facet param, got %q", got)
		}
		if got := q.Get("search"); got != "recalling_firm:acme" {
			t.Errorf("unexpected search %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []TrendPoint{{Time: "20240101", Count: 4}, {Time: "20240102", Count: 9}},
		})
	}))
	defer srv.Close()

	points := testRetriever(srv).CountTrend(context.Background(), "recalling_firm", "acme", SourceRecall, "event_date_initiated")
	if len(points) != 2 || points[1].Count != 9 {
		t.Fatalf("unexpected trend points: %v", points)
	}
}

func TestCountTrendFailureDegradesToNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if points := testRetriever(srv).CountTrend(context.Background(), "recalling_firm", "acme", SourceRecall, "event_date_initiated"); points != nil {
		t.Fatalf("expected nil on failure, got %v", points)
	}
}
