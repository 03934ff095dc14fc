package claimstore

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/gyeh/payrun/internal/model"
)

var validate = validator.New()

// lineDoc is a service line as stored in Mongo.
type lineDoc struct {
	ServiceCode   string  `bson:"service_code"`
	BilledAmount  float64 `bson:"billed_amount"`
	AllowedAmount float64 `bson:"allowed_amount"`
	Quantity      float64 `bson:"quantity,omitempty" validate:"gte=0"`
}

// claimDoc is the stored claim document. Fields outside the required set are
// kept in Extra.
type claimDoc struct {
	ClaimID           string    `bson:"claim_id" validate:"required"`
	PaymentEventID    string    `bson:"payment_event_id" validate:"required"`
	ParentClaimCoreID string    `bson:"parent_claim_core_id"`
	ClaimType         string    `bson:"claim_type"`
	Status            string    `bson:"status"`
	FrequencyCode     any       `bson:"frequency_code"`
	TIN               string    `bson:"tin,omitempty"`
	NPI               string    `bson:"npi,omitempty"`
	MemberID          string    `bson:"member_id,omitempty"`
	BenefitPlanID     string    `bson:"benefit_plan_id,omitempty"`
	ServiceLines      []lineDoc `bson:"service_lines" validate:"dive"`
	Extra             bson.M    `bson:",inline"`
}

// frequencyString renders a stored frequency code, which may be numeric or
// textual, in its canonical string form.
func frequencyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// toClaim validates d and converts it to the canonical claim.
func (d claimDoc) toClaim() (model.Claim, error) {
	if err := validate.Struct(d); err != nil {
		return model.Claim{}, fmt.Errorf("claim %q: %w", d.ClaimID, err)
	}
	lines := make([]model.ServiceLineCore, len(d.ServiceLines))
	for i, l := range d.ServiceLines {
		lines[i] = model.ServiceLineCore{
			ServiceCode:   l.ServiceCode,
			BilledAmount:  l.BilledAmount,
			AllowedAmount: l.AllowedAmount,
			Quantity:      l.Quantity,
		}
	}
	var extra map[string]any
	for k, v := range d.Extra {
		if k == "_id" {
			continue
		}
		if extra == nil {
			extra = make(map[string]any, len(d.Extra))
		}
		extra[k] = v
	}
	return model.Claim{
		ClaimID:           d.ClaimID,
		ParentClaimCoreID: d.ParentClaimCoreID,
		ClaimType:         model.ClaimType(d.ClaimType),
		Status:            model.ClaimStatus(d.Status),
		FrequencyCode:     model.FrequencyCode(frequencyString(d.FrequencyCode)),
		TIN:               d.TIN,
		NPI:               d.NPI,
		MemberID:          d.MemberID,
		BenefitPlanID:     d.BenefitPlanID,
		ServiceLines:      lines,
		Extra:             extra,
	}, nil
}
