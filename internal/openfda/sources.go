package openfda

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SourceKind identifies one openFDA device record category.
type SourceKind string

const (
	SourceClearance      SourceKind = "510k"
	SourceApproval       SourceKind = "pma"
	SourceRecall         SourceKind = "recall"
	SourceEvent          SourceKind = "event"
	SourceClassification SourceKind = "classification"
	SourceUDI            SourceKind = "udi"
)

// AllSources lists every source in retrieval priority order: cheap reference
// data first, high-volume report data last.
var AllSources = []SourceKind{
	SourceClassification,
	SourceUDI,
	SourceClearance,
	SourceApproval,
	SourceRecall,
	SourceEvent,
}

// RawRecord maps a flattened field path (dot-delimited for nested origin,
// e.g. "device.brand_name") to a scalar or list value.
type RawRecord map[string]any

// SourceTable holds the normalized records for one (source, query) pair.
// Every record carries the same column set; expected columns missing from
// the payload are present with a nil value.
type SourceTable struct {
	Source      SourceKind  `json:"source"`
	Query       string      `json:"query"`
	RetrievedAt time.Time   `json:"retrieved_at"`
	Columns     []string    `json:"columns"`
	Records     []RawRecord `json:"records"`
}

func (t SourceTable) Empty() bool { return len(t.Records) == 0 }

type sourceSpec struct {
	path         string
	searchFields []string
	dateField    string // empty for undated sources
	expected     []string
}

// Search fields are the union of the device-name and manufacturer-name
// fields that the API actually honors per endpoint.
var sourceSpecs = map[SourceKind]sourceSpec{
	SourceClearance: {
		path:         "/device/510k.json",
		searchFields: []string{"device_name", "applicant"},
		dateField:    "decision_date",
		expected: []string{
			"k_number", "device_name", "decision_date", "decision_description",
			"applicant", "product_code", "clearance_type",
		},
	},
	SourceApproval: {
		path:         "/device/pma.json",
		searchFields: []string{"trade_name", "generic_name", "applicant"},
		dateField:    "decision_date",
		expected: []string{
			"pma_number", "supplement_number", "trade_name", "generic_name",
			"decision_date", "supplement_reason", "applicant", "product_code",
		},
	},
	SourceRecall: {
		path:         "/device/recall.json",
		searchFields: []string{"product_description", "recalling_firm"},
		dateField:    "event_date_initiated",
		expected: []string{
			"event_date_initiated", "recalling_firm", "product_description",
			"recall_classification", "recall_status", "reason_for_recall",
		},
	},
	SourceEvent: {
		path:         "/device/event.json",
		searchFields: []string{"device.brand_name", "device.generic_name"},
		dateField:    "date_received",
		expected: []string{
			"report_number", "event_type", "date_received", "date_of_event",
			"manufacturer_name", "product_problems", "adverse_event_flag",
			"remedial_action", "event_location", "reporter_occupation_code",
			"device.brand_name", "device.generic_name", "device.device_report_product_code",
			"patient.outcome",
		},
	},
	SourceClassification: {
		path:         "/device/classification.json",
		searchFields: []string{"device_name", "medical_specialty_description"},
		dateField:    "",
		expected: []string{
			"device_name", "classification_name", "product_code", "device_class",
			"regulation_number", "medical_specialty_description",
		},
	},
	SourceUDI: {
		path:         "/device/udi.json",
		searchFields: []string{"brand_name", "device_description", "company_name"},
		dateField:    "",
		expected: []string{
			"brand_name", "device_description", "company_name", "device_identifier",
			"version_or_model_number", "device_status",
		},
	},
}

// Known reports whether kind names a configured source.
func Known(kind SourceKind) bool {
	_, ok := sourceSpecs[kind]
	return ok
}

// SearchFields returns the candidate search fields for a source, nil for an
// unknown source.
func SearchFields(kind SourceKind) []string {
	return sourceSpecs[kind].searchFields
}

// DateField returns the canonical date field for a source, empty when the
// source has no temporal dimension (classification, udi).
func DateField(kind SourceKind) string {
	return sourceSpecs[kind].dateField
}

// Normalize converts one decoded API page into a SourceTable. A body without
// a result list yields an empty table; malformed items are normalized on a
// best-effort basis, never rejected.
func Normalize(body map[string]any, kind SourceKind, query string) SourceTable {
	table := SourceTable{Source: kind, Query: query, RetrievedAt: time.Now()}
	if body == nil {
		return table
	}
	items, ok := body["results"].([]any)
	if !ok {
		return table
	}
	return normalizeItems(items, kind, query)
}

func normalizeItems(items []any, kind SourceKind, query string) SourceTable {
	table := SourceTable{Source: kind, Query: query, RetrievedAt: time.Now()}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := flattenRecord(m)
		if kind == SourceEvent {
			denormalizeEvent(rec, m)
		}
		table.Records = append(table.Records, rec)
	}
	materializeColumns(&table, sourceSpecs[kind].expected)
	return table
}

// flattenRecord flattens one level of JSON nesting with a "." separator.
// Deeper structures and lists are carried through untouched; the event
// denormalizer extracts the nested lists it needs afterwards.
func flattenRecord(m map[string]any) RawRecord {
	rec := RawRecord{}
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			for sk, sv := range sub {
				rec[k+"."+sk] = sv
			}
			continue
		}
		rec[k] = v
	}
	return rec
}

var eventDeviceFields = []string{"brand_name", "generic_name", "device_report_product_code"}

// denormalizeEvent rewrites the event source's nested device and patient
// lists into dedicated scalar columns. Up to three device sub-records are
// kept ("device.", "device_2.", "device_3." prefixes) along with the first
// patient outcome; the raw nested lists are dropped so that downstream
// consumers only ever see scalar columns.
func denormalizeEvent(rec RawRecord, item map[string]any) {
	if devices, ok := item["device"].([]any); ok {
		for i, dv := range devices {
			if i >= 3 {
				break
			}
			dm, ok := dv.(map[string]any)
			if !ok {
				continue
			}
			prefix := "device."
			if i > 0 {
				prefix = fmt.Sprintf("device_%d.", i+1)
			}
			for _, f := range eventDeviceFields {
				if val, ok := dm[f]; ok {
					rec[prefix+f] = val
				}
			}
		}
	}
	delete(rec, "device")

	if patients, ok := item["patient"].([]any); ok && len(patients) > 0 {
		if pm, ok := patients[0].(map[string]any); ok {
			if outcomes, ok := pm["sequence_number_outcome"].([]any); ok && len(outcomes) > 0 {
				rec["patient.outcome"] = scalarString(outcomes[0])
			}
		}
	}
	delete(rec, "patient")

	if actions, ok := rec["remedial_action"].([]any); ok {
		if len(actions) > 0 {
			rec["remedial_action"] = scalarString(actions[0])
		} else {
			rec["remedial_action"] = nil
		}
	}

	// product_problems arrives as a string, a list, a null, or a bare
	// scalar depending on the record. Resolve to one display string here so
	// the aggregator never branches on raw JSON shape.
	if v, ok := rec["product_problems"]; ok {
		rec["product_problems"] = canonicalScalar(v)
	}
}

// canonicalScalar reduces a loosely-typed field to a single string, or nil
// when the value carries no content.
func canonicalScalar(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			s := strings.TrimSpace(scalarString(p))
			if s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return strings.Join(parts, ", ")
	default:
		return scalarString(v)
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// materializeColumns gives every record the same column set: the union of
// all observed keys plus the source's expected columns, missing values nil.
func materializeColumns(table *SourceTable, expected []string) {
	seen := map[string]struct{}{}
	for _, col := range expected {
		seen[col] = struct{}{}
	}
	for _, rec := range table.Records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	table.Columns = cols

	for _, rec := range table.Records {
		for _, col := range cols {
			if _, ok := rec[col]; !ok {
				rec[col] = nil
			}
		}
	}
}

// String returns the string form of a record field, empty for nil or
// missing values. Lists resolve to their joined display form.
func (r RawRecord) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	c := canonicalScalar(v)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(scalarString(c))
}

var dateLayouts = []string{"2006-01-02", "20060102", time.RFC3339}

// ParseDate parses an openFDA date value. The API mixes dashed and compact
// layouts across endpoints.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
