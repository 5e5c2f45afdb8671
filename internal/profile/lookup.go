package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devicewatch/internal/openfda"
)

// DeviceDetails is the classification-derived summary for a product code.
type DeviceDetails struct {
	ProductCode      string `json:"product_code"`
	DeviceName       string `json:"device_name"`
	DeviceClass      string `json:"device_class"`
	RegulationNumber string `json:"regulation_number"`
	MedicalSpecialty string `json:"medical_specialty"`
}

// LookupResult is the product-code view: device details plus the full
// cross-source profile for records carrying that code.
type LookupResult struct {
	ProductCode string                                     `json:"product_code"`
	Details     DeviceDetails                              `json:"details"`
	Tables      map[openfda.SourceKind]openfda.SourceTable `json:"tables"`
	Profile     DeviceProfile                              `json:"profile"`
	Summary     RegulatorySummary                          `json:"summary"`
}

// the event source files product codes under the nested device record
func codeField(kind openfda.SourceKind) string {
	if kind == openfda.SourceEvent {
		return "device.device_report_product_code"
	}
	return "product_code"
}

// LookupProductCode retrieves every source by exact product code. The
// classification source is fetched first so a code with no classification
// record fails fast.
func LookupProductCode(ctx context.Context, fetcher Fetcher, code string, maxRecords int) (LookupResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	res := LookupResult{ProductCode: code, Tables: map[openfda.SourceKind]openfda.SourceTable{}}
	if code == "" {
		return res, errors.New("product code is required")
	}

	classTable := fetcher.RetrieveQuery(ctx,
		fmt.Sprintf("%s:%s", codeField(openfda.SourceClassification), code),
		openfda.SourceClassification, maxRecords)
	if classTable.Empty() {
		return res, fmt.Errorf("no classification record for product code %s", code)
	}
	res.Tables[openfda.SourceClassification] = classTable
	res.Details = detailsFromClassification(classTable, code)

	for _, kind := range openfda.AllSources {
		if kind == openfda.SourceClassification {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		table := fetcher.RetrieveQuery(ctx, fmt.Sprintf("%s:%s", codeField(kind), code), kind, maxRecords)
		if !table.Empty() {
			res.Tables[kind] = table
		}
	}

	res.Profile = BuildProfile(res.Tables, res.Details.DeviceName)
	res.Summary = GenerateSummary(res.Profile)
	return res, nil
}

func detailsFromClassification(table openfda.SourceTable, code string) DeviceDetails {
	rec := table.Records[0]
	return DeviceDetails{
		ProductCode:      code,
		DeviceName:       rec.String("device_name"),
		DeviceClass:      rec.String("device_class"),
		RegulationNumber: rec.String("regulation_number"),
		MedicalSpecialty: rec.String("medical_specialty_description"),
	}
}
