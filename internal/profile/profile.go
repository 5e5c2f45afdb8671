package profile

import (
	"fmt"
	"sort"
	"strings"

	"devicewatch/internal/openfda"
)

// Risk score weights. The score is a bounded heuristic, not a regulatory
// determination.
const (
	riskClassIRecall   = 30
	riskClassIIRecall  = 15
	riskClassIIIRecall = 5
	riskSeriousEvent   = 2
	riskHighRiskClass  = 10
	riskScoreMax       = 100.0
)

// genericProblem is the display fallback for adverse events whose
// product_problems field carried no content.
const genericProblem = "Adverse event"

// processing order fixes timeline insertion order for same-date entries; the
// final stable sort keeps it.
var processingOrder = []openfda.SourceKind{
	openfda.SourceClearance,
	openfda.SourceApproval,
	openfda.SourceRecall,
	openfda.SourceEvent,
	openfda.SourceClassification,
}

type builder struct {
	profile       DeviceProfile
	manufacturers map[string]string // case-folded -> display form
	productCodes  StringSet
}

// BuildProfile links all retrieved tables into one DeviceProfile for the
// queried entity. Each source writes to disjoint slices of the profile, so
// the result does not depend on table map iteration; the timeline gets a
// final stable ascending sort.
func BuildProfile(tables map[openfda.SourceKind]openfda.SourceTable, query string) DeviceProfile {
	b := &builder{
		profile:       DeviceProfile{DeviceName: query},
		manufacturers: map[string]string{},
		productCodes:  StringSet{},
	}

	for _, kind := range processingOrder {
		table, ok := tables[kind]
		if !ok || table.Empty() {
			continue
		}
		switch kind {
		case openfda.SourceClearance:
			b.processClearances(table)
		case openfda.SourceApproval:
			b.processApprovals(table)
		case openfda.SourceRecall:
			b.processRecalls(table)
		case openfda.SourceEvent:
			b.processEvents(table)
		case openfda.SourceClassification:
			b.processClassifications(table)
		}
	}

	b.profile.Manufacturers = manufacturerList(b.manufacturers)
	b.profile.ProductCodes = b.productCodes.Values()
	b.profile.RiskScore = riskScore(b.profile)

	sort.SliceStable(b.profile.Timeline, func(i, j int) bool {
		return b.profile.Timeline[i].Date.Before(b.profile.Timeline[j].Date)
	})
	return b.profile
}

func (b *builder) addManufacturer(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	if _, ok := b.manufacturers[key]; !ok {
		b.manufacturers[key] = name
	}
}

func (b *builder) addTimeline(dateValue, kind, description string) {
	// undated events never enter the timeline
	ts, ok := openfda.ParseDate(dateValue)
	if !ok {
		return
	}
	b.profile.Timeline = append(b.profile.Timeline, TimelineEvent{Date: ts, Kind: kind, Description: description})
}

func (b *builder) processClearances(table openfda.SourceTable) {
	for _, rec := range table.Records {
		b.addManufacturer(rec.String("applicant"))
		b.productCodes.Add(rec.String("product_code"))

		b.profile.Clearances = append(b.profile.Clearances, Clearance{
			KNumber:       rec.String("k_number"),
			DeviceName:    rec.String("device_name"),
			DecisionDate:  rec.String("decision_date"),
			Applicant:     rec.String("applicant"),
			ClearanceType: rec.String("clearance_type"),
			ProductCode:   rec.String("product_code"),
		})
		b.addTimeline(rec.String("decision_date"), KindClearance,
			fmt.Sprintf("510(k) clearance: %s by %s",
				orDefault(rec.String("device_name"), "Device"),
				orDefault(rec.String("applicant"), "Unknown")))
	}
}

func (b *builder) processApprovals(table openfda.SourceTable) {
	for _, rec := range table.Records {
		b.addManufacturer(rec.String("applicant"))
		b.productCodes.Add(rec.String("product_code"))

		b.profile.Approvals = append(b.profile.Approvals, Approval{
			PMANumber:        rec.String("pma_number"),
			TradeName:        rec.String("trade_name"),
			DecisionDate:     rec.String("decision_date"),
			Applicant:        rec.String("applicant"),
			SupplementReason: rec.String("supplement_reason"),
			ProductCode:      rec.String("product_code"),
		})
		b.addTimeline(rec.String("decision_date"), KindApproval,
			fmt.Sprintf("PMA approval: %s by %s",
				orDefault(rec.String("trade_name"), "Device"),
				orDefault(rec.String("applicant"), "Unknown")))
	}
}

func (b *builder) processRecalls(table openfda.SourceTable) {
	for _, rec := range table.Records {
		b.addManufacturer(rec.String("recalling_firm"))

		classification := rec.String("recall_classification")
		b.profile.Recalls = append(b.profile.Recalls, Recall{
			EventDate:          rec.String("event_date_initiated"),
			RecallingFirm:      rec.String("recalling_firm"),
			ProductDescription: rec.String("product_description"),
			Classification:     classification,
			ReasonForRecall:    rec.String("reason_for_recall"),
			Status:             rec.String("recall_status"),
		})
		b.addTimeline(rec.String("event_date_initiated"), KindRecall,
			fmt.Sprintf("Class %s recall: %s",
				orDefault(RecallClass(classification), "unclassified"),
				clampString(orDefault(rec.String("reason_for_recall"), "Unspecified"), 80)))
	}
}

func (b *builder) processEvents(table openfda.SourceTable) {
	for _, rec := range table.Records {
		b.addManufacturer(rec.String("manufacturer_name"))

		problems := orDefault(rec.String("product_problems"), genericProblem)
		b.profile.AdverseEvents = append(b.profile.AdverseEvents, AdverseEvent{
			ReportNumber:     rec.String("report_number"),
			DateReceived:     rec.String("date_received"),
			EventType:        rec.String("event_type"),
			ManufacturerName: rec.String("manufacturer_name"),
			ProductProblems:  problems,
			AdverseEventFlag: rec.String("adverse_event_flag"),
			PatientOutcome:   rec.String("patient.outcome"),
			DeviceBrand:      rec.String("device.brand_name"),
		})
		b.addTimeline(rec.String("date_received"), KindAdverseEvent,
			fmt.Sprintf("Adverse event: %s", clampString(problems, 80)))
	}
}

func (b *builder) processClassifications(table openfda.SourceTable) {
	for _, rec := range table.Records {
		b.productCodes.Add(rec.String("product_code"))

		b.profile.Classifications = append(b.profile.Classifications, Classification{
			DeviceName:       rec.String("device_name"),
			DeviceClass:      rec.String("device_class"),
			ProductCode:      rec.String("product_code"),
			MedicalSpecialty: rec.String("medical_specialty_description"),
			RegulationNumber: rec.String("regulation_number"),
		})
		// classification records are not dated events; no timeline entry
	}
}

// RecallClass detects the recall severity tier from the source's free-text
// classification. Most-specific first: "III" would otherwise also match the
// "II" and "I" substring tests.
func RecallClass(classification string) string {
	text := strings.ToUpper(classification)
	switch {
	case strings.Contains(text, "III"):
		return "III"
	case strings.Contains(text, "II"):
		return "II"
	case strings.Contains(text, "I"):
		return "I"
	default:
		return ""
	}
}

func riskScore(p DeviceProfile) float64 {
	score := 0.0
	for _, r := range p.Recalls {
		switch RecallClass(r.Classification) {
		case "I":
			score += riskClassIRecall
		case "II":
			score += riskClassIIRecall
		case "III":
			score += riskClassIIIRecall
		}
	}
	for _, e := range p.AdverseEvents {
		if e.AdverseEventFlag == "Y" {
			score += riskSeriousEvent
		}
	}
	for _, c := range p.Classifications {
		if c.DeviceClass == "III" || c.DeviceClass == "3" {
			score += riskHighRiskClass
			break
		}
	}
	if score > riskScoreMax {
		return riskScoreMax
	}
	return score
}

func manufacturerList(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, display := range m {
		out = append(out, display)
	}
	sort.Strings(out)
	return out
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func clampString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
