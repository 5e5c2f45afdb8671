package profile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"devicewatch/internal/openfda"
)

// Fetcher is the retrieval capability the pipeline depends on. Satisfied by
// *openfda.Retriever; tests substitute a stub.
type Fetcher interface {
	Retrieve(ctx context.Context, query string, kind openfda.SourceKind, maxRecords int) openfda.SourceTable
	RetrieveQuery(ctx context.Context, search string, kind openfda.SourceKind, maxRecords int) openfda.SourceTable
}

// ProgressFn receives per-source progress while a query runs.
type ProgressFn func(source openfda.SourceKind, message string)

type PipelineConfig struct {
	MaxRecordsPerSource int
	LookbackMonths      int
}

const (
	DefaultMaxRecordsPerSource = 500
	DefaultLookbackMonths      = 6
)

// Pipeline runs one query end to end: strategy-expanded retrieval per
// source, date-window filtering, then cross-source aggregation. Retrieval is
// sequential across sources; the fetcher's rate limiter is the only shared
// resource.
type Pipeline struct {
	fetcher Fetcher
	cfg     PipelineConfig
}

func NewPipeline(fetcher Fetcher, cfg PipelineConfig) *Pipeline {
	if cfg.MaxRecordsPerSource <= 0 {
		cfg.MaxRecordsPerSource = DefaultMaxRecordsPerSource
	}
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = DefaultLookbackMonths
	}
	return &Pipeline{fetcher: fetcher, cfg: cfg}
}

type ResultMetadata struct {
	StartedAt       time.Time            `json:"started_at"`
	ElapsedMS       int64                `json:"elapsed_ms"`
	SourcesSearched []openfda.SourceKind `json:"sources_searched"`
	Cancelled       bool                 `json:"cancelled"`
}

// Result bundles everything one query produced. Tables hold the filtered
// per-source records; Profile and Summary are derived from them.
type Result struct {
	Query       string                                     `json:"query"`
	Tables      map[openfda.SourceKind]openfda.SourceTable `json:"tables"`
	Identifiers Identifiers                                `json:"identifiers"`
	Profile     DeviceProfile                              `json:"profile"`
	Summary     RegulatorySummary                          `json:"summary"`
	Metadata    ResultMetadata                             `json:"metadata"`
}

func (p *Pipeline) Run(ctx context.Context, query string) (Result, error) {
	return p.RunWithProgress(ctx, query, nil)
}

// RunWithProgress retrieves every source in priority order. Cancellation
// between sources is cooperative: whatever tables were accumulated are still
// aggregated into a valid (partial) profile, with Metadata.Cancelled set.
func (p *Pipeline) RunWithProgress(ctx context.Context, query string, progress ProgressFn) (Result, error) {
	res := Result{
		Query:    query,
		Tables:   map[openfda.SourceKind]openfda.SourceTable{},
		Metadata: ResultMetadata{StartedAt: time.Now()},
	}
	if strings.TrimSpace(query) == "" {
		return res, errors.New("query is required")
	}

	for _, kind := range openfda.AllSources {
		if ctx.Err() != nil {
			res.Metadata.Cancelled = true
			break
		}
		emit(progress, kind, fmt.Sprintf("Retrieving %s records...", kind))
		table := p.fetcher.Retrieve(ctx, query, kind, p.cfg.MaxRecordsPerSource)
		table = openfda.FilterByWindow(table, kind, p.cfg.LookbackMonths)
		res.Metadata.SourcesSearched = append(res.Metadata.SourcesSearched, kind)
		if table.Empty() {
			log.Printf("devicewatch source_empty query=%q source=%s", query, kind)
			continue
		}
		log.Printf("devicewatch source_done query=%q source=%s records=%d", query, kind, len(table.Records))
		res.Tables[kind] = table
	}

	res.Identifiers = ExtractIdentifiers(res.Tables, query)
	res.Profile = BuildProfile(res.Tables, query)
	res.Summary = GenerateSummary(res.Profile)
	res.Metadata.ElapsedMS = time.Since(res.Metadata.StartedAt).Milliseconds()
	return res, nil
}

func emit(progress ProgressFn, kind openfda.SourceKind, message string) {
	if progress != nil {
		progress(kind, message)
	}
}
