package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://api.fda.gov"
	DefaultMaxRecords = 500
	DefaultRateDelay  = 500 * time.Millisecond
	// PageSize is the API's stated maximum page size.
	PageSize = 100
	// budgetFraction stops strategy fan-out once enough records are in hand.
	budgetFraction = 0.8
)

// RetrieverConfig carries every knob the retriever needs. Nothing is read
// from the process environment here; the cmds thread env/file values in.
type RetrieverConfig struct {
	BaseURL    string
	APIKey     string
	RateDelay  time.Duration
	MaxRecords int
	HTTPClient *http.Client
}

// Retriever executes candidate queries against the openFDA API, paging until
// a record budget or source exhaustion. All requests issued by one instance
// are serialized behind a shared inter-request delay; the limiter is the
// sole concurrency-control point.
type Retriever struct {
	cfg     RetrieverConfig
	limiter *rate.Limiter
}

func NewRetriever(cfg RetrieverConfig) *Retriever {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateDelay <= 0 {
		cfg.RateDelay = DefaultRateDelay
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Retriever{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.RateDelay), 1),
	}
}

// Retrieve runs every strategy from BuildQueries for a free-text query. It
// never fails: transport and decode errors degrade to empty pages, an
// unknown source or cancelled context yields whatever was accumulated.
func (r *Retriever) Retrieve(ctx context.Context, query string, kind SourceKind, maxRecords int) SourceTable {
	return r.retrieve(ctx, query, BuildQueries(query, kind), kind, maxRecords)
}

// RetrieveQuery runs a single caller-built search expression, e.g.
// "product_code:LZG", with no strategy expansion.
func (r *Retriever) RetrieveQuery(ctx context.Context, search string, kind SourceKind, maxRecords int) SourceTable {
	return r.retrieve(ctx, search, []string{search}, kind, maxRecords)
}

func (r *Retriever) retrieve(ctx context.Context, query string, strategies []string, kind SourceKind, maxRecords int) SourceTable {
	spec, ok := sourceSpecs[kind]
	if !ok {
		log.Printf("devicewatch retrieve_skipped source=%q err=\"unknown source\"", kind)
		return SourceTable{Source: kind, Query: query, RetrievedAt: time.Now()}
	}
	if maxRecords <= 0 {
		maxRecords = r.cfg.MaxRecords
	}

	var collected []any
	for _, search := range strategies {
		if ctx.Err() != nil {
			break
		}
		collected = r.pageStrategy(ctx, spec, kind, search, collected, maxRecords)
		if float64(len(collected)) >= budgetFraction*float64(maxRecords) {
			break
		}
	}
	return normalizeItems(collected, kind, query)
}

// pageStrategy pages through one search expression until the budget is met,
// a page comes back empty or short, or a request fails.
func (r *Retriever) pageStrategy(ctx context.Context, spec sourceSpec, kind SourceKind, search string, collected []any, maxRecords int) []any {
	skip := 0
	for len(collected) < maxRecords {
		if ctx.Err() != nil {
			return collected
		}
		limit := PageSize
		if remaining := maxRecords - len(collected); remaining < limit {
			limit = remaining
		}
		results, err := r.fetchPage(ctx, spec, search, limit, skip)
		if err != nil {
			log.Printf("devicewatch page_failed source=%s skip=%d err=%q", kind, skip, err.Error())
			return collected
		}
		if len(results) == 0 {
			return collected
		}
		collected = append(collected, results...)
		if len(results) < limit {
			return collected
		}
		skip += limit
	}
	return collected
}

// fetchPage performs one rate-limited request. A "not found" response is
// zero results, not a failure.
func (r *Retriever) fetchPage(ctx context.Context, spec sourceSpec, search string, limit, skip int) ([]any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", strconv.Itoa(limit))
	if skip > 0 {
		params.Set("skip", strconv.Itoa(skip))
	}
	if spec.dateField != "" {
		params.Set("sort", spec.dateField+":desc")
	}
	if r.cfg.APIKey != "" {
		params.Set("api_key", r.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+spec.path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 8<<20))

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("status code: %d", res.StatusCode)
	}

	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	results, _ := body["results"].([]any)
	return results, nil
}

// TrendPoint is one bucket of the API's count facet.
type TrendPoint struct {
	Term  string `json:"term"`
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// CountTrend queries the count facet for one field, typically a date field,
// returning bucketed counts. Failures degrade to an empty slice.
func (r *Retriever) CountTrend(ctx context.Context, field, query string, kind SourceKind, countField string) []TrendPoint {
	spec, ok := sourceSpecs[kind]
	if !ok {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil
	}

	params := url.Values{}
	params.Set("search", fmt.Sprintf("%s:%s", field, query))
	params.Set("count", countField)
	if r.cfg.APIKey != "" {
		params.Set("api_key", r.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+spec.path+"?"+params.Encode(), nil)
	if err != nil {
		return nil
	}
	res, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		log.Printf("devicewatch count_trend_failed source=%s field=%s err=%q", kind, field, err.Error())
		return nil
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil
	}
	var body struct {
		Results []TrendPoint `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		log.Printf("devicewatch count_trend_decode_failed source=%s err=%q", kind, err.Error())
		return nil
	}
	return body.Results
}
