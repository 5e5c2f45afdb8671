package profile

import "time"

// RegulatorySummary is a read-only projection of a DeviceProfile: category
// counts, recent-activity slices and safety-signal counts. Derived on
// demand, never mutated independently.
type RegulatorySummary struct {
	DeviceOverview    DeviceOverview    `json:"device_overview"`
	RegulatoryHistory RegulatoryHistory `json:"regulatory_history"`
	RecentActivity    RecentActivity    `json:"recent_activity"`
	SafetySignals     SafetySignals     `json:"safety_signals"`
}

type DeviceOverview struct {
	PrimaryName   string   `json:"primary_name"`
	Manufacturers []string `json:"manufacturers"`
	ProductCodes  []string `json:"product_codes"`
	RiskScore     float64  `json:"risk_score"`
}

type RegulatoryHistory struct {
	Clearances      int `json:"total_510k_clearances"`
	Approvals       int `json:"total_pma_approvals"`
	Recalls         int `json:"total_recalls"`
	AdverseEvents   int `json:"total_adverse_events"`
	Classifications int `json:"total_classifications"`
}

type RecentActivity struct {
	Last30Days []TimelineEvent `json:"last_30_days"`
	Last90Days []TimelineEvent `json:"last_90_days"`
}

type SafetySignals struct {
	ClassIRecalls        int `json:"class_1_recalls"`
	SeriousAdverseEvents int `json:"serious_adverse_events"`
}

// GenerateSummary derives the summary at the current instant.
func GenerateSummary(p DeviceProfile) RegulatorySummary {
	return generateSummaryAt(p, time.Now())
}

func generateSummaryAt(p DeviceProfile, now time.Time) RegulatorySummary {
	s := RegulatorySummary{
		DeviceOverview: DeviceOverview{
			PrimaryName:   p.DeviceName,
			Manufacturers: p.Manufacturers,
			ProductCodes:  p.ProductCodes,
			RiskScore:     p.RiskScore,
		},
		RegulatoryHistory: RegulatoryHistory{
			Clearances:      len(p.Clearances),
			Approvals:       len(p.Approvals),
			Recalls:         len(p.Recalls),
			AdverseEvents:   len(p.AdverseEvents),
			Classifications: len(p.Classifications),
		},
	}

	s.RecentActivity.Last30Days = lastNDays(p.Timeline, now, 30)
	s.RecentActivity.Last90Days = lastNDays(p.Timeline, now, 90)

	for _, r := range p.Recalls {
		if RecallClass(r.Classification) == "I" {
			s.SafetySignals.ClassIRecalls++
		}
	}
	for _, e := range p.AdverseEvents {
		if e.AdverseEventFlag == "Y" {
			s.SafetySignals.SeriousAdverseEvents++
		}
	}
	return s
}

func lastNDays(timeline []TimelineEvent, now time.Time, days int) []TimelineEvent {
	cutoff := now.AddDate(0, 0, -days)
	out := []TimelineEvent{}
	for _, evt := range timeline {
		if evt.Date.After(cutoff) {
			out = append(out, evt)
		}
	}
	return out
}
