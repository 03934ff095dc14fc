package claims

import (
	"strings"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
)

// Normalize returns a copy of c with identity fields and codes in canonical
// form. Claim and parent ids are only trimmed.
func Normalize(c model.Claim) model.Claim {
	c.ClaimID = strings.TrimSpace(c.ClaimID)
	c.ParentClaimCoreID = strings.TrimSpace(c.ParentClaimCoreID)
	c.ClaimType = model.ClaimType(strings.ToUpper(strings.TrimSpace(string(c.ClaimType))))
	c.Status = model.ClaimStatus(strings.ToUpper(strings.TrimSpace(string(c.Status))))
	c.FrequencyCode = model.ParseFrequencyCode(string(c.FrequencyCode))
	c.TIN = normalize.NormalizeIdentifier(c.TIN)
	c.NPI = normalize.NormalizeIdentifier(c.NPI)
	c.MemberID = normalize.NormalizeIdentifier(c.MemberID)
	c.BenefitPlanID = normalize.NormalizeIdentifier(c.BenefitPlanID)

	lines := make([]model.ServiceLineCore, len(c.ServiceLines))
	for i, l := range c.ServiceLines {
		l.ServiceCode = normalize.NormalizeCode(l.ServiceCode)
		lines[i] = l
	}
	c.ServiceLines = lines
	return c
}

// NormalizeBatch normalizes a batch of claims in order.
func NormalizeBatch(batch []model.Claim) ([]model.Claim, error) {
	out := make([]model.Claim, len(batch))
	for i, c := range batch {
		out[i] = Normalize(c)
	}
	return out, nil
}
