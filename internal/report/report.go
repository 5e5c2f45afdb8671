package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"devicewatch/internal/openfda"
	"devicewatch/internal/profile"
)

const Disclaimer = "_This report aggregates public FDA records by literal name and code matching. It is an analyst aid, not a regulatory determination; record linkage across sources is heuristic._"

// BuildMarkdown renders the full regulatory profile report. Narratives maps
// a source kind (upper-cased) or "overall" to optional LLM-generated text;
// pass nil to omit narrative sections.
func BuildMarkdown(res profile.Result, narratives map[string]string) string {
	var b strings.Builder
	buildHeader(&b, res)
	buildOverview(&b, res)
	if narratives != nil {
		if text := strings.TrimSpace(narratives["overall"]); text != "" {
			fmt.Fprintf(&b, "## Narrative Summary\n\n%s\n\n", text)
		}
	}
	buildSafetySignals(&b, res.Summary)
	buildTimeline(&b, res.Profile.Timeline)
	buildRecalls(&b, res.Profile.Recalls)
	buildAdverseEvents(&b, res.Profile.AdverseEvents)
	buildClearances(&b, res.Profile.Clearances)
	buildApprovals(&b, res.Profile.Approvals)
	buildClassifications(&b, res.Profile.Classifications)
	buildSourceNarratives(&b, res, narratives)
	buildMetadata(&b, res)
	return b.String()
}

func buildHeader(b *strings.Builder, res profile.Result) {
	fmt.Fprintf(b, "# Device Regulatory Profile: %s\n\n", res.Query)
	fmt.Fprintf(b, "- Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(b, "- Risk score: %.1f / 100\n", res.Profile.RiskScore)
	fmt.Fprintf(b, "- Sources searched: %d\n\n", len(res.Metadata.SourcesSearched))
	fmt.Fprintf(b, "%s\n\n", Disclaimer)
}

func buildOverview(b *strings.Builder, res profile.Result) {
	fmt.Fprintf(b, "## Overview\n\n")
	fmt.Fprintf(b, "- Linked manufacturers: %s\n", listOrNone(res.Profile.Manufacturers))
	fmt.Fprintf(b, "- Linked product codes: %s\n", listOrNone(res.Profile.ProductCodes))
	h := res.Summary.RegulatoryHistory
	fmt.Fprintf(b, "- 510(k) clearances: %d\n", h.Clearances)
	fmt.Fprintf(b, "- PMA approvals: %d\n", h.Approvals)
	fmt.Fprintf(b, "- Recalls: %d\n", h.Recalls)
	fmt.Fprintf(b, "- Adverse events: %d\n", h.AdverseEvents)
	fmt.Fprintf(b, "- Classification records: %d\n\n", h.Classifications)
}

func buildSafetySignals(b *strings.Builder, sum profile.RegulatorySummary) {
	fmt.Fprintf(b, "## Safety Signals\n\n")
	fmt.Fprintf(b, "- Class I recalls: %d\n", sum.SafetySignals.ClassIRecalls)
	fmt.Fprintf(b, "- Serious adverse events: %d\n", sum.SafetySignals.SeriousAdverseEvents)
	fmt.Fprintf(b, "- Events in the last 30 days: %d\n", len(sum.RecentActivity.Last30Days))
	fmt.Fprintf(b, "- Events in the last 90 days: %d\n\n", len(sum.RecentActivity.Last90Days))
}

func buildTimeline(b *strings.Builder, timeline []profile.TimelineEvent) {
	if len(timeline) == 0 {
		return
	}
	fmt.Fprintf(b, "## Regulatory Timeline\n\n")
	fmt.Fprintf(b, "| Date | Event | Description |\n|---|---|---|\n")
	for _, evt := range timeline {
		fmt.Fprintf(b, "| %s | %s | %s |\n", evt.Date.Format("2006-01-02"), evt.Kind, cell(evt.Description))
	}
	b.WriteString("\n")
}

func buildRecalls(b *strings.Builder, recalls []profile.Recall) {
	if len(recalls) == 0 {
		return
	}
	fmt.Fprintf(b, "## Recalls\n\n")
	fmt.Fprintf(b, "| Initiated | Firm | Classification | Reason |\n|---|---|---|---|\n")
	for _, r := range recalls {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", cell(r.EventDate), cell(r.RecallingFirm), cell(r.Classification), cell(clamp(r.ReasonForRecall, 120)))
	}
	b.WriteString("\n")
}

func buildAdverseEvents(b *strings.Builder, events []profile.AdverseEvent) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(b, "## Adverse Events\n\n")
	fmt.Fprintf(b, "| Received | Manufacturer | Problem | Confirmed | Outcome |\n|---|---|---|---|---|\n")
	for _, e := range events {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			cell(e.DateReceived), cell(e.ManufacturerName), cell(clamp(e.ProductProblems, 100)), cell(e.AdverseEventFlag), cell(e.PatientOutcome))
	}
	b.WriteString("\n")
}

func buildClearances(b *strings.Builder, clearances []profile.Clearance) {
	if len(clearances) == 0 {
		return
	}
	fmt.Fprintf(b, "## 510(k) Clearances\n\n")
	fmt.Fprintf(b, "| K Number | Device | Decision | Applicant | Code |\n|---|---|---|---|---|\n")
	for _, c := range clearances {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n", cell(c.KNumber), cell(c.DeviceName), cell(c.DecisionDate), cell(c.Applicant), cell(c.ProductCode))
	}
	b.WriteString("\n")
}

func buildApprovals(b *strings.Builder, approvals []profile.Approval) {
	if len(approvals) == 0 {
		return
	}
	fmt.Fprintf(b, "## PMA Approvals\n\n")
	fmt.Fprintf(b, "| PMA Number | Trade Name | Decision | Applicant | Code |\n|---|---|---|---|---|\n")
	for _, a := range approvals {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n", cell(a.PMANumber), cell(a.TradeName), cell(a.DecisionDate), cell(a.Applicant), cell(a.ProductCode))
	}
	b.WriteString("\n")
}

func buildClassifications(b *strings.Builder, classifications []profile.Classification) {
	if len(classifications) == 0 {
		return
	}
	fmt.Fprintf(b, "## Device Classifications\n\n")
	fmt.Fprintf(b, "| Device | Class | Code | Specialty | Regulation |\n|---|---|---|---|---|\n")
	for _, c := range classifications {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n", cell(c.DeviceName), cell(c.DeviceClass), cell(c.ProductCode), cell(c.MedicalSpecialty), cell(c.RegulationNumber))
	}
	b.WriteString("\n")
}

func buildSourceNarratives(b *strings.Builder, res profile.Result, narratives map[string]string) {
	if len(narratives) == 0 {
		return
	}
	keys := make([]string, 0, len(narratives))
	for k := range narratives {
		if k != "overall" && strings.TrimSpace(narratives[k]) != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "## Per-Source Notes\n\n")
	for _, k := range keys {
		fmt.Fprintf(b, "### %s\n\n%s\n\n", k, strings.TrimSpace(narratives[k]))
	}
}

func buildMetadata(b *strings.Builder, res profile.Result) {
	fmt.Fprintf(b, "## Retrieval Metadata\n\n")
	fmt.Fprintf(b, "- Started: %s\n", res.Metadata.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(b, "- Elapsed: %d ms\n", res.Metadata.ElapsedMS)
	if res.Metadata.Cancelled {
		fmt.Fprintf(b, "- Note: retrieval was cancelled; this profile is partial\n")
	}
	var kinds []string
	for kind, table := range res.Tables {
		kinds = append(kinds, fmt.Sprintf("%s (%d records)", kind, len(table.Records)))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(b, "- %s\n", k)
	}
	b.WriteString("\n")
}

// TrendSection appends a count-trend table; used by callers that fetched
// trend buckets alongside the profile.
func TrendSection(points []openfda.TrendPoint, title string) string {
	if len(points) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n| Bucket | Count |\n|---|---|\n", title)
	for _, p := range points {
		label := p.Time
		if label == "" {
			label = p.Term
		}
		fmt.Fprintf(&b, "| %s | %d |\n", cell(label), p.Count)
	}
	b.WriteString("\n")
	return b.String()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none found"
	}
	return strings.Join(items, ", ")
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
