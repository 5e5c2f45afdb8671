package profile

import (
	"testing"

	"devicewatch/internal/openfda"
)

func TestExtractIdentifiersUnionsAcrossSources(t *testing.T) {
	ids := ExtractIdentifiers(acmeTables(), "Acme Infusion Pump")

	if !ids.DeviceNames.Has("acme infusion pump") {
		t.Fatal("expected query added to device names")
	}
	if !ids.DeviceNames.Has("acmeinfusionpump") {
		t.Fatal("expected no-space query variant added")
	}
	if !ids.DeviceNames.Has("infusion pump") {
		t.Fatalf("expected classification device name, got %v", ids.DeviceNames.Values())
	}
	if !ids.ProductCodes.Has("LZG") {
		t.Fatalf("expected product code kept verbatim, got %v", ids.ProductCodes.Values())
	}
	if !ids.Manufacturers.Has("acme corp") {
		t.Fatalf("expected case-folded manufacturer, got %v", ids.Manufacturers.Values())
	}
	if !ids.ClearanceNumbers.Has("K240001") {
		t.Fatalf("expected clearance number, got %v", ids.ClearanceNumbers.Values())
	}
	if len(ids.ApprovalNumbers) != 0 {
		t.Fatalf("expected no approval numbers, got %v", ids.ApprovalNumbers.Values())
	}
}

func TestExtractIdentifiersPure(t *testing.T) {
	tables := acmeTables()
	before := len(tables[openfda.SourceClearance].Records[0])
	_ = ExtractIdentifiers(tables, "acme")
	if len(tables[openfda.SourceClearance].Records[0]) != before {
		t.Fatal("expected input tables untouched")
	}
}

func TestStringSet(t *testing.T) {
	s := StringSet{}
	s.Add("  LZG  ")
	s.Add("")
	s.Add("   ")
	s.Add("FRN")
	if !s.Has("LZG") {
		t.Fatal("expected trimmed value stored")
	}
	got := s.Values()
	if len(got) != 2 || got[0] != "FRN" || got[1] != "LZG" {
		t.Fatalf("expected sorted values without blanks, got %v", got)
	}
}
