package profile

import (
	"sort"
	"strings"

	"devicewatch/internal/openfda"
)

// StringSet is a case-preserving membership set keyed on exact strings.
type StringSet map[string]struct{}

func (s StringSet) Add(v string) {
	v = strings.TrimSpace(v)
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Identifiers are the literal tokens shared across sources that stand in
// for a device identity. No source carries a universal device ID, so linking
// is a best-effort set union over names, codes and firm names, not a
// relational join.
type Identifiers struct {
	DeviceNames      StringSet `json:"device_names"`
	ProductCodes     StringSet `json:"product_codes"`
	Manufacturers    StringSet `json:"manufacturers"`
	ClearanceNumbers StringSet `json:"clearance_numbers"`
	ApprovalNumbers  StringSet `json:"approval_numbers"`
}

var (
	identifierNameFields = []string{
		"device_name", "trade_name", "generic_name", "product_description",
		"device.brand_name", "device.generic_name", "brand_name",
	}
	identifierCodeFields = []string{"product_code", "device.device_report_product_code"}
	identifierFirmFields = []string{"applicant", "manufacturer_name", "recalling_firm", "company_name"}
)

// ExtractIdentifiers unions the identifying fields of every table into the
// five identifier sets. Names and firms are case-folded for matching; codes
// and submission numbers keep their exact form. Pure function.
func ExtractIdentifiers(tables map[openfda.SourceKind]openfda.SourceTable, query string) Identifiers {
	ids := Identifiers{
		DeviceNames:      StringSet{},
		ProductCodes:     StringSet{},
		Manufacturers:    StringSet{},
		ClearanceNumbers: StringSet{},
		ApprovalNumbers:  StringSet{},
	}

	q := strings.ToLower(strings.TrimSpace(query))
	ids.DeviceNames.Add(q)
	ids.DeviceNames.Add(strings.ReplaceAll(q, " ", ""))

	for _, table := range tables {
		for _, rec := range table.Records {
			for _, field := range identifierNameFields {
				ids.DeviceNames.Add(strings.ToLower(rec.String(field)))
			}
			for _, field := range identifierCodeFields {
				ids.ProductCodes.Add(rec.String(field))
			}
			for _, field := range identifierFirmFields {
				ids.Manufacturers.Add(strings.ToLower(rec.String(field)))
			}
			ids.ClearanceNumbers.Add(rec.String("k_number"))
			ids.ApprovalNumbers.Add(rec.String("pma_number"))
		}
	}
	return ids
}
