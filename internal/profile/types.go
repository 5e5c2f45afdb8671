package profile

import "time"

// Timeline event kinds.
const (
	KindClearance    = "510K_CLEARANCE"
	KindApproval     = "PMA_APPROVAL"
	KindRecall       = "RECALL"
	KindAdverseEvent = "ADVERSE_EVENT"
)

// TimelineEvent is one dated regulatory event contributing to a profile.
type TimelineEvent struct {
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
}

type Clearance struct {
	KNumber       string `json:"k_number"`
	DeviceName    string `json:"device_name"`
	DecisionDate  string `json:"decision_date"`
	Applicant     string `json:"applicant"`
	ClearanceType string `json:"clearance_type"`
	ProductCode   string `json:"product_code"`
}

type Approval struct {
	PMANumber        string `json:"pma_number"`
	TradeName        string `json:"trade_name"`
	DecisionDate     string `json:"decision_date"`
	Applicant        string `json:"applicant"`
	SupplementReason string `json:"supplement_reason"`
	ProductCode      string `json:"product_code"`
}

type Recall struct {
	EventDate          string `json:"event_date"`
	RecallingFirm      string `json:"recalling_firm"`
	ProductDescription string `json:"product_description"`
	// Classification is the source's free-text classification string; the
	// upstream data is too inconsistent to normalize into an enum.
	Classification  string `json:"recall_classification"`
	ReasonForRecall string `json:"reason_for_recall"`
	Status          string `json:"recall_status"`
}

type AdverseEvent struct {
	ReportNumber     string `json:"report_number"`
	DateReceived     string `json:"date_received"`
	EventType        string `json:"event_type"`
	ManufacturerName string `json:"manufacturer_name"`
	ProductProblems  string `json:"product_problems"`
	AdverseEventFlag string `json:"adverse_event_flag"`
	PatientOutcome   string `json:"patient_outcome"`
	DeviceBrand      string `json:"device_brand"`
}

type Classification struct {
	DeviceName       string `json:"device_name"`
	DeviceClass      string `json:"device_class"`
	ProductCode      string `json:"product_code"`
	MedicalSpecialty string `json:"medical_specialty"`
	RegulationNumber string `json:"regulation_number"`
}

// DeviceProfile is the aggregated cross-source view of one queried device or
// manufacturer. Built once per query, immutable afterwards; safe to read
// from multiple consumers without locking.
type DeviceProfile struct {
	DeviceName      string           `json:"device_name"`
	Manufacturers   []string         `json:"manufacturers"`
	ProductCodes    []string         `json:"product_codes"`
	Clearances      []Clearance      `json:"clearances"`
	Approvals       []Approval       `json:"approvals"`
	Recalls         []Recall         `json:"recalls"`
	AdverseEvents   []AdverseEvent   `json:"adverse_events"`
	Classifications []Classification `json:"classifications"`
	RiskScore       float64          `json:"risk_score"`
	Timeline        []TimelineEvent  `json:"timeline"`
}
