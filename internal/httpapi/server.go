package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"devicewatch/internal/cache"
	"devicewatch/internal/openfda"
	"devicewatch/internal/profile"
	"devicewatch/internal/report"
	"devicewatch/internal/summarize"
)

// Runner executes one profile query end to end.
type Runner interface {
	Run(ctx context.Context, query string) (profile.Result, error)
}

// DataSource is the retrieval surface the non-profile endpoints need.
type DataSource interface {
	profile.Fetcher
	CountTrend(ctx context.Context, field, query string, kind openfda.SourceKind, countField string) []openfda.TrendPoint
}

type Options struct {
	Cache      *cache.Store          // nil disables response caching
	Summarizer *summarize.Summarizer // nil disables narrative text
	MaxRecords int
}

type Server struct {
	runner     Runner
	source     DataSource
	store      *cache.Store
	summarizer *summarize.Summarizer
	maxRecords int
	tracer     trace.Tracer
}

func NewServer(runner Runner, source DataSource, opts Options) http.Handler {
	s := &Server{
		runner:     runner,
		source:     source,
		store:      opts.Cache,
		summarizer: opts.Summarizer,
		maxRecords: opts.MaxRecords,
		tracer:     otel.Tracer("devicewatch/httpapi"),
	}
	if s.maxRecords <= 0 {
		s.maxRecords = openfda.DefaultMaxRecords
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/profile", s.handleProfile)
	mux.HandleFunc("/v1/summary", s.handleSummary)
	mux.HandleFunc("/v1/report", s.handleReport)
	mux.HandleFunc("/v1/lookup", s.handleLookup)
	mux.HandleFunc("/v1/trends", s.handleTrends)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// runCached runs the pipeline for a query, serving and populating the
// response cache when one is configured.
func (s *Server) runCached(ctx context.Context, query string) (profile.Result, []byte, error) {
	if s.store != nil {
		if payload, ok, err := s.store.Get(query); err == nil && ok {
			var res profile.Result
			if json.Unmarshal(payload, &res) == nil {
				return res, payload, nil
			}
		} else if err != nil {
			log.Printf("devicewatch cache_get_failed query=%q err=%q", query, err.Error())
		}
	}

	res, err := s.runner.Run(ctx, query)
	if err != nil {
		return res, nil, err
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return res, nil, err
	}
	if s.store != nil && !res.Metadata.Cancelled {
		if err := s.store.Put(query, payload); err != nil {
			log.Printf("devicewatch cache_put_failed query=%q err=%q", query, err.Error())
		}
	}
	return res, payload, nil
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter q")
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "devicewatch.profile",
		trace.WithAttributes(attribute.String("devicewatch.query", query)))
	defer span.End()

	res, payload, err := s.runCached(ctx, query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Float64("devicewatch.risk_score", res.Profile.RiskScore),
		attribute.Int("devicewatch.timeline_events", len(res.Profile.Timeline)),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter q")
		return
	}
	res, _, err := s.runCached(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.Summary)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter q")
		return
	}
	res, _, err := s.runCached(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var narratives map[string]string
	if s.summarizer != nil {
		if text, err := s.summarizer.SummarizeProfile(r.Context(), res.Profile, res.Summary); err == nil {
			narratives = map[string]string{"overall": text}
		} else {
			log.Printf("devicewatch summary_failed query=%q err=%q", query, err.Error())
		}
	}
	markdown := report.BuildMarkdown(res, narratives)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(markdown))
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter code")
		return
	}
	res, err := profile.LookupProductCode(r.Context(), s.source, code, s.maxRecords)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	kind := openfda.SourceKind(strings.TrimSpace(q.Get("source")))
	if !openfda.Known(kind) {
		writeError(w, http.StatusBadRequest, "unknown source")
		return
	}
	field := strings.TrimSpace(q.Get("field"))
	query := strings.TrimSpace(q.Get("q"))
	if field == "" || query == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameters field and q")
		return
	}
	countField := strings.TrimSpace(q.Get("count"))
	if countField == "" {
		countField = openfda.DateField(kind)
	}
	if countField == "" {
		writeError(w, http.StatusBadRequest, "source has no date field; pass count explicitly")
		return
	}
	points := s.source.CountTrend(r.Context(), field, query, kind, countField)
	writeJSON(w, http.StatusOK, map[string]any{
		"source": kind,
		"field":  field,
		"count":  countField,
		"points": points,
	})
}
