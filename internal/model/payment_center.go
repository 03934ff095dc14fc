package model

import "strings"

// PaymentCenterType selects how a claim's payee identity is derived.
type PaymentCenterType string

const (
	PaymentCenterProvider PaymentCenterType = "PROVIDER"
	PaymentCenterDMR      PaymentCenterType = "DMR"
)

// UnknownIdentifier is used when a claim carries none of the identity fields
// for its PaymentCenter type.
const UnknownIdentifier = "UNKNOWN"

// ParsePaymentCenterType accepts "provider"/"dmr" in any case.
func ParsePaymentCenterType(s string) (PaymentCenterType, bool) {
	switch PaymentCenterType(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentCenterProvider:
		return PaymentCenterProvider, true
	case PaymentCenterDMR:
		return PaymentCenterDMR, true
	}
	return "", false
}

// PaymentCenter is a payee grouping that receives aggregated payments.
type PaymentCenter struct {
	PaymentCenterID int64             `json:"payment_center_id"`
	Key             string            `json:"key"`
	Type            PaymentCenterType `json:"type"`
	Name            string            `json:"name"`
	TaxID           string            `json:"tax_id,omitempty"`
	NPI             string            `json:"npi,omitempty"`
	MemberID        string            `json:"member_id,omitempty"`
}

// PaymentCenterCache maps composite keys to PaymentCenter ids.
type PaymentCenterCache map[string]int64

// PaymentCenterSummary is produced when synchronizing derived keys against
// the cache.
type PaymentCenterSummary struct {
	ExistingIDs    []int64  `json:"existing_ids"`
	MissingKeys    []string `json:"missing_keys"`
	CreatedWSIDs   []int64  `json:"created_ws_ids"`
	CreatedProdIDs []int64  `json:"created_prod_ids"`
}

// PaymentCenterClaims is the claim population attributed to one PaymentCenter,
// with the parent groups to price and summary totals.
type PaymentCenterClaims struct {
	PaymentCenterID int64         `json:"payment_center_id"`
	Key             string        `json:"key"`
	ClaimIDs        []string      `json:"claim_ids"`
	Groups          []ParentGroup `json:"groups"`
	OverUnder       OUSummary     `json:"over_under"`
	Totals          CenterTotals  `json:"totals"`
}

// CenterTotals are the pre-pricing figures of a PaymentCenter's claims.
type CenterTotals struct {
	Claims           int     `json:"claims"`
	ServiceLines     int     `json:"service_lines"`
	ProjectedPayment float64 `json:"projected_payment"`
	PreviousBalance  float64 `json:"previous_balance"`
	OURecords        int     `json:"ou_records"`
}
