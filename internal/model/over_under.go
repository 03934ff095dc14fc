package model

// Over/under record types written after a run.
const (
	OUTypeOffset      = "OFFSET"
	OUTypeOverpayment = "OVERPAYMENT"
)

// OverUnderRecord is a single over/under entry against a PaymentCenter.
type OverUnderRecord struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Type      string  `json:"type"`
}

// OUSummary is the carried balance of a PaymentCenter plus its entries.
// A positive balance is an amount owed back by the payee.
type OUSummary struct {
	PaymentCenterID int64             `json:"payment_center_id"`
	PreviousBalance float64           `json:"previous_balance"`
	Records         []OverUnderRecord `json:"records"`
}
