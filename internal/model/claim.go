package model

import "strings"

// ClaimType enumerates supported claim types.
type ClaimType string

const (
	ClaimTypeMedical  ClaimType = "MEDICAL"
	ClaimTypePharmacy ClaimType = "PHARMACY"
	ClaimTypeDental   ClaimType = "DENTAL"
)

// Valid reports whether t is one of the enumerated claim types.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeMedical, ClaimTypePharmacy, ClaimTypeDental:
		return true
	}
	return false
}

// ClaimStatus enumerates claim processing statuses.
type ClaimStatus string

const (
	ClaimStatusOpen     ClaimStatus = "OPEN"
	ClaimStatusClosed   ClaimStatus = "CLOSED"
	ClaimStatusAdjusted ClaimStatus = "ADJUSTED"
)

// Valid reports whether s is one of the enumerated statuses.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusOpen, ClaimStatusClosed, ClaimStatusAdjusted:
		return true
	}
	return false
}

// FrequencyCode is the billing frequency code carried on a claim. Stored values
// are the numeric codes "1".."5".
type FrequencyCode string

const (
	FrequencyOriginal          FrequencyCode = "1"
	FrequencyInterimContinuing FrequencyCode = "2"
	FrequencyInterimFinal      FrequencyCode = "3"
	FrequencyReplacement       FrequencyCode = "4"
	FrequencyVoid              FrequencyCode = "5"
)

var frequencyNames = map[string]FrequencyCode{
	"ORIGINAL":           FrequencyOriginal,
	"INTERIM_CONTINUING": FrequencyInterimContinuing,
	"INTERIM_FINAL":      FrequencyInterimFinal,
	"REPLACEMENT":        FrequencyReplacement,
	"VOID":               FrequencyVoid,
}

// ParseFrequencyCode accepts either the numeric code or its symbolic name.
// Unrecognized input is returned as-is so validation can flag it.
func ParseFrequencyCode(s string) FrequencyCode {
	s = strings.TrimSpace(s)
	if fc, ok := frequencyNames[strings.ToUpper(s)]; ok {
		return fc
	}
	return FrequencyCode(s)
}

// Valid reports whether fc is one of the enumerated frequency codes.
func (fc FrequencyCode) Valid() bool {
	switch fc {
	case FrequencyOriginal, FrequencyInterimContinuing, FrequencyInterimFinal,
		FrequencyReplacement, FrequencyVoid:
		return true
	}
	return false
}

// Name returns the symbolic name of the code, or the raw value when unknown.
func (fc FrequencyCode) Name() string {
	for name, code := range frequencyNames {
		if code == fc {
			return name
		}
	}
	return string(fc)
}

// ServiceLineCore is a service line as stored on a claim.
type ServiceLineCore struct {
	ServiceCode   string  `json:"service_code" bson:"service_code"`
	BilledAmount  float64 `json:"billed_amount" bson:"billed_amount"`
	AllowedAmount float64 `json:"allowed_amount" bson:"allowed_amount"`
	// Quantity defaults to 1 when the source omits it.
	Quantity float64 `json:"quantity,omitempty" bson:"quantity,omitempty"`
}

// Units returns the quantity, treating an absent value as a single unit.
func (l ServiceLineCore) Units() float64 {
	if l.Quantity == 0 {
		return 1
	}
	return l.Quantity
}

// Claim is the canonical claim record consumed by a run. Claims are read-only
// once fetched.
type Claim struct {
	ClaimID           string            `json:"claim_id"`
	ParentClaimCoreID string            `json:"parent_claim_core_id"`
	ClaimType         ClaimType         `json:"claim_type"`
	Status            ClaimStatus       `json:"status"`
	FrequencyCode     FrequencyCode     `json:"frequency_code"`
	TIN               string            `json:"tin,omitempty"`
	NPI               string            `json:"npi,omitempty"`
	MemberID          string            `json:"member_id,omitempty"`
	BenefitPlanID     string            `json:"benefit_plan_id,omitempty"`
	ServiceLines      []ServiceLineCore `json:"service_lines"`

	// Extra holds source fields outside the required set, preserved for
	// forward compatibility.
	Extra map[string]any `json:"extra,omitempty"`
}

// ParentGroup holds the claims of one parent lineage split into disjoint
// buckets. Claims keep their arrival order within a bucket.
type ParentGroup struct {
	ParentID     string  `json:"parent_id"`
	PaidClaims   []Claim `json:"paid_claims"`
	AdjustClaims []Claim `json:"adjust_claims"`
	VoidClaims   []Claim `json:"void_claims"`
}

// Add places the claim into its bucket. VOID wins over everything, then
// ADJUSTED status or a replacement/interim-final code, else paid.
func (g *ParentGroup) Add(c Claim) {
	switch {
	case c.FrequencyCode == FrequencyVoid:
		g.VoidClaims = append(g.VoidClaims, c)
	case c.Status == ClaimStatusAdjusted ||
		c.FrequencyCode == FrequencyReplacement ||
		c.FrequencyCode == FrequencyInterimFinal:
		g.AdjustClaims = append(g.AdjustClaims, c)
	default:
		g.PaidClaims = append(g.PaidClaims, c)
	}
}

// All returns every claim of the group: paid, then adjust, then void.
func (g *ParentGroup) All() []Claim {
	out := make([]Claim, 0, len(g.PaidClaims)+len(g.AdjustClaims)+len(g.VoidClaims))
	out = append(out, g.PaidClaims...)
	out = append(out, g.AdjustClaims...)
	return append(out, g.VoidClaims...)
}

// Len returns the number of claims in the group.
func (g *ParentGroup) Len() int {
	return len(g.PaidClaims) + len(g.AdjustClaims) + len(g.VoidClaims)
}
