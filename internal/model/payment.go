package model

// ServiceLine is a service line ready for calculation.
type ServiceLine struct {
	ServiceCode   string  `json:"service_code"`
	ChargeAmount  float64 `json:"charge_amount"`
	AllowedAmount float64 `json:"allowed_amount"`
	Quantity      float64 `json:"quantity"`
}

// ServiceLineFromCore converts a stored line into its calculation form.
func ServiceLineFromCore(l ServiceLineCore) ServiceLine {
	return ServiceLine{
		ServiceCode:   l.ServiceCode,
		ChargeAmount:  l.BilledAmount,
		AllowedAmount: l.AllowedAmount,
		Quantity:      l.Units(),
	}
}

// ServiceLinePayment is the computed payment for one service line.
type ServiceLinePayment struct {
	ServiceLine      ServiceLine       `json:"service_line"`
	CalculatedAmount float64           `json:"calculated_amount"`
	OffsetsApplied   float64           `json:"offsets_applied"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Net is the amount paid for the line after offsets.
func (p ServiceLinePayment) Net() float64 {
	return p.CalculatedAmount - p.OffsetsApplied
}

// ClaimPayment aggregates service-line payments for one parent lineage.
type ClaimPayment struct {
	ClaimID             string               `json:"claim_id"`
	PaymentEventID      string               `json:"payment_event_id,omitempty"`
	PaymentCenterID     int64                `json:"payment_center_id,omitempty"`
	PaymentNumber       int64                `json:"payment_number,omitempty"`
	ServiceLinePayments []ServiceLinePayment `json:"service_line_payments"`
	TotalAmount         float64              `json:"total_amount"`
	InterestAmount      float64              `json:"interest_amount"`
	OffsetsApplied      float64              `json:"offsets_applied"`
}

// PaymentContext carries what the calculator needs beyond the line itself.
type PaymentContext struct {
	PaymentEventID string             `json:"payment_event_id"`
	OverUnder      OUSummary          `json:"over_under"`
	Settings       map[string]float64 `json:"settings,omitempty"`
}

// Setting returns the named setting or def when it is absent.
func (c PaymentContext) Setting(name string, def float64) float64 {
	if v, ok := c.Settings[name]; ok {
		return v
	}
	return def
}
