package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"devicewatch/internal/openfda"
	"devicewatch/internal/profile"
)

// Essential fields per source keep the prompt token-efficient; everything
// else in a record is noise for a narrative summary.
var essentialFields = map[openfda.SourceKind][]string{
	openfda.SourceClearance:      {"k_number", "device_name", "decision_date", "applicant"},
	openfda.SourceApproval:       {"pma_number", "trade_name", "decision_date", "applicant"},
	openfda.SourceClassification: {"device_name", "device_class", "medical_specialty_description"},
	openfda.SourceUDI:            {"brand_name", "device_description", "company_name"},
	openfda.SourceRecall:         {"event_date_initiated", "recalling_firm", "product_description", "recall_classification", "reason_for_recall"},
	openfda.SourceEvent:          {"date_received", "manufacturer_name", "product_problems", "device.brand_name", "device.generic_name"},
}

// SourceSample is the shaped, size-capped slice of one table handed to the
// language model.
type SourceSample struct {
	SourceType     string              `json:"source_type"`
	TotalRecords   int                 `json:"num_total_records_in_source"`
	SampledRecords int                 `json:"num_sample_records_analyzed"`
	Records        []map[string]string `json:"sample_records"`
	DateRange      string              `json:"approx_date_range_in_source"`
}

// PrepareSourceData projects a table down to its essential fields and a
// bounded sample: 5 records for the high-volume recall/event sources, 8
// elsewhere.
func PrepareSourceData(table openfda.SourceTable) SourceSample {
	sample := SourceSample{
		SourceType:   strings.ToUpper(string(table.Source)),
		TotalRecords: len(table.Records),
		DateRange:    dateRange(table),
	}
	limit := 8
	if table.Source == openfda.SourceRecall || table.Source == openfda.SourceEvent {
		limit = 5
	}
	fields := essentialFields[table.Source]
	for i, rec := range table.Records {
		if i >= limit {
			break
		}
		row := map[string]string{}
		for _, f := range fields {
			if v := rec.String(f); v != "" {
				row[f] = v
			}
		}
		sample.Records = append(sample.Records, row)
	}
	sample.SampledRecords = len(sample.Records)
	return sample
}

func dateRange(table openfda.SourceTable) string {
	field := openfda.DateField(table.Source)
	if field == "" {
		return "N/A"
	}
	var dates []string
	for _, rec := range table.Records {
		if ts, ok := openfda.ParseDate(rec.String(field)); ok {
			dates = append(dates, ts.Format("2006-01-02"))
		}
	}
	if len(dates) == 0 {
		return "N/A"
	}
	sort.Strings(dates)
	return fmt.Sprintf("%s to %s", dates[0], dates[len(dates)-1])
}

// Summarizer turns shaped profile data into short narrative text via an
// LLMCaller. It never feeds anything back into the retrieval core.
type Summarizer struct {
	caller LLMCaller
}

func NewSummarizer(caller LLMCaller) *Summarizer {
	return &Summarizer{caller: caller}
}

func (s *Summarizer) ModelName() string {
	if s == nil || s.caller == nil {
		return DefaultModel
	}
	return s.caller.ModelName()
}

// SummarizeTable produces the per-source narrative for one table.
func (s *Summarizer) SummarizeTable(ctx context.Context, table openfda.SourceTable, query string) (string, error) {
	if table.Empty() {
		return fmt.Sprintf("No %s records were found for '%s' in the selected window.", table.Source, query), nil
	}
	prompt := BuildTablePrompt(PrepareSourceData(table), query)
	return s.caller.GenerateText(ctx, prompt)
}

// SummarizeProfile produces the overall narrative for a built profile.
func (s *Summarizer) SummarizeProfile(ctx context.Context, p profile.DeviceProfile, sum profile.RegulatorySummary) (string, error) {
	prompt, err := BuildProfilePrompt(p, sum)
	if err != nil {
		return "", err
	}
	return s.caller.GenerateText(ctx, prompt)
}

// BuildTablePrompt renders the structured per-source prompt. The response
// format is fixed so the renderer can rely on its section headers.
func BuildTablePrompt(sample SourceSample, query string) string {
	data, _ := json.MarshalIndent(sample, "", "  ")
	var b strings.Builder
	b.WriteString("Analyze the FDA data sample below.\n\n")
	fmt.Fprintf(&b, "The user searched for: %q\n\n", query)
	b.WriteString(`VERIFICATION STEP - REQUIRED:
1. Check whether the queried device or manufacturer actually appears in the sample records.
2. If it does not, respond ONLY with: "No specific data for '` + query + `' was found in this data sample."
3. Do not provide insights about unrelated records.

If the query subject IS present, respond using exactly these sections, one blank line between each:

MAIN OBSERVATION:
[1-2 sentences on the most noticeable point in this sample, with counts or dates where helpful.]

WHAT THIS MIGHT MEAN:
[1-2 sentences on the potential significance, in plain terms.]

OTHER DETAILS:
[1-2 sentences on secondary points.]

IMPORTANT NOTE:
[1 sentence reminding the reader this reflects only the small sample of recent records provided.]

Keep the whole response under 150 words.

`)
	b.WriteString("Data sample:\n")
	b.Write(data)
	return b.String()
}

// BuildProfilePrompt renders the cross-source prompt from an already-built
// profile and its summary projection.
func BuildProfilePrompt(p profile.DeviceProfile, sum profile.RegulatorySummary) (string, error) {
	payload, err := json.MarshalIndent(map[string]any{
		"device_overview":    sum.DeviceOverview,
		"regulatory_history": sum.RegulatoryHistory,
		"safety_signals":     sum.SafetySignals,
		"recent_timeline":    tail(p.Timeline, 15),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Below is the aggregated FDA regulatory profile for %q, cross-referenced from 510(k), PMA, recall, adverse-event and classification records.\n\n", p.DeviceName)
	b.WriteString("Write a concise regulatory-history narrative (under 200 words) for a non-expert: overall activity level, any safety signals, and what the risk score reflects. Do not speculate beyond the data.\n\n")
	b.Write(payload)
	return b.String(), nil
}

func tail(events []profile.TimelineEvent, n int) []profile.TimelineEvent {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}
