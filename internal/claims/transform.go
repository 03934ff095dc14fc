package claims

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/payrun/internal/calc"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
	"github.com/gyeh/payrun/internal/paycenter"
	"github.com/gyeh/payrun/internal/payerr"
)

// Source fetches the claims of a payment event from one claim-store scope.
type Source interface {
	Fetch(ctx context.Context, source model.ClaimSource, paymentEventID string) ([]model.Claim, error)
}

// Transformer fetches claims and shapes them into PaymentCenter populations.
type Transformer struct {
	src Source
	log zerolog.Logger
}

// NewTransformer creates a Transformer reading from src.
func NewTransformer(src Source, log zerolog.Logger) *Transformer {
	return &Transformer{src: src, log: log}
}

// FetchClaims returns the fully materialized claim set of the event.
func (t *Transformer) FetchClaims(ctx context.Context, source model.ClaimSource, event *model.PaymentEvent) ([]model.Claim, error) {
	start := time.Now()
	claims, err := t.src.Fetch(ctx, source, event.PaymentEventID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s claims: %w", source, err)
	}
	t.log.Info().
		Str("source", string(source)).
		Str("payment_event_id", event.PaymentEventID).
		Int("claims", len(claims)).
		Dur("duration", time.Since(start)).
		Msg("claims fetched")
	return claims, nil
}

// ToPaymentCenterClaims groups claims by parent, attributes each group to the
// PaymentCenter of its representative claim, and attaches over/under context.
// Every derived key must already be present in cache.
func (t *Transformer) ToPaymentCenterClaims(
	claims []model.Claim,
	cache model.PaymentCenterCache,
	pcType model.PaymentCenterType,
	overUnder map[int64]model.OUSummary,
) ([]model.PaymentCenterClaims, error) {
	byCenter := make(map[int64]*model.PaymentCenterClaims)
	for _, group := range GroupByParent(claims) {
		rep, ok := representative(group)
		if !ok {
			continue
		}
		key := paycenter.DeriveKey(rep, pcType)
		id, ok := cache[key]
		if !ok {
			return nil, payerr.New(payerr.KindDataIntegrity, "claims.ToPaymentCenterClaims",
				"parent %q maps to unresolved PaymentCenter %q", group.ParentID, key)
		}
		pc, ok := byCenter[id]
		if !ok {
			pc = &model.PaymentCenterClaims{PaymentCenterID: id, Key: key}
			byCenter[id] = pc
		}
		for _, c := range group.All() {
			pc.ClaimIDs = append(pc.ClaimIDs, c.ClaimID)
		}
		pc.Groups = append(pc.Groups, group)
		pc.Totals.Claims += group.Len()
		for _, c := range calc.Candidates(group) {
			pc.Totals.ServiceLines += len(c.ServiceLines)
		}
		pc.Totals.ProjectedPayment = normalize.RoundCents(
			pc.Totals.ProjectedPayment + calc.RollupToClaim(group).TotalAmount)
	}

	out := make([]model.PaymentCenterClaims, 0, len(byCenter))
	for _, pc := range byCenter {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentCenterID < out[j].PaymentCenterID })

	AttachOverUnder(out, overUnder)
	return out, nil
}

// AttachOverUnder copies each center's carried balance onto its entry.
// Centers without a summary get a zero balance.
func AttachOverUnder(pcClaims []model.PaymentCenterClaims, overUnder map[int64]model.OUSummary) {
	for i := range pcClaims {
		ou, ok := overUnder[pcClaims[i].PaymentCenterID]
		if !ok {
			ou = model.OUSummary{PaymentCenterID: pcClaims[i].PaymentCenterID}
		}
		ou.Records = slices.Clone(ou.Records)
		pcClaims[i].OverUnder = ou
		pcClaims[i].Totals.PreviousBalance = ou.PreviousBalance
		pcClaims[i].Totals.OURecords = len(ou.Records)
	}
}

// representative picks the claim whose identity keys a parent group.
func representative(g model.ParentGroup) (model.Claim, bool) {
	switch {
	case len(g.PaidClaims) > 0:
		return g.PaidClaims[0], true
	case len(g.AdjustClaims) > 0:
		return g.AdjustClaims[0], true
	case len(g.VoidClaims) > 0:
		return g.VoidClaims[0], true
	}
	return model.Claim{}, false
}
