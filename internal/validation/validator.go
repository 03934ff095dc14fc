// Package validation runs the pre-payment checks that gate a run. Every check
// returns exactly one Finding and records it on the Validator for aggregation.
package validation

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/paycenter"
	"github.com/gyeh/payrun/internal/payerr"
)

// Check names recorded on findings.
const (
	CheckFrequencyCodes     = "frequency_codes"
	CheckIdentifiers        = "identifiers"
	CheckDuplicates         = "duplicates"
	CheckNegativeDollars    = "negative_dollars"
	CheckMissingParentPaid  = "missing_parent_paid"
	CheckBenefitPlan        = "benefit_plan"
	CheckVoidLinkage        = "void_linkage"
	CheckPaymentCenters     = "payment_centers"
	CheckSequences          = "sequences"
	CheckEventScope         = "event_scope"
	CheckUnknownIdentifiers = "unknown_identifiers"
	CheckAllowedCenters     = "allowed_centers"
	CheckClaimShape         = "claim_shape"
)

// Stages a final run may execute in.
var finalStages = map[string]struct{}{"ready": {}, "final": {}}

// Validator captures the findings of one run. It is not safe for concurrent
// use.
type Validator struct {
	pcType       model.PaymentCenterType
	allowedPlans map[string]struct{}
	findings     []model.Finding
}

// New creates a Validator for the given PaymentCenter type and allowed
// benefit plans. An empty plan list disables the benefit plan check.
func New(pcType model.PaymentCenterType, allowedPlans []string) *Validator {
	plans := make(map[string]struct{}, len(allowedPlans))
	for _, p := range allowedPlans {
		plans[p] = struct{}{}
	}
	return &Validator{pcType: pcType, allowedPlans: plans}
}

// Findings returns a copy of the captured findings in call order.
func (v *Validator) Findings() []model.Finding {
	return slices.Clone(v.findings)
}

func (v *Validator) record(f model.Finding) model.Finding {
	if f.SampleIDs == nil {
		f.SampleIDs = []string{}
	}
	v.findings = append(v.findings, f)
	return f
}

// flag builds a finding that is INFO when ids is empty and sev otherwise.
func (v *Validator) flag(check string, sev model.Severity, ids []string, clean, dirty string) model.Finding {
	if len(ids) == 0 {
		return v.record(model.Finding{Check: check, Severity: model.SeverityInfo, Message: clean})
	}
	return v.record(model.Finding{
		Check:     check,
		Severity:  sev,
		Message:   fmt.Sprintf(dirty, len(ids)),
		Count:     len(ids),
		SampleIDs: samples(ids),
	})
}

func samples(ids []string) []string {
	n := min(len(ids), model.MaxSampleIDs)
	return slices.Clone(ids[:n])
}

// ClaimChecks runs every claim-level check in a fixed order.
func (v *Validator) ClaimChecks(claims []model.Claim) []model.Finding {
	return []model.Finding{
		v.FrequencyCodes(claims),
		v.Identifiers(claims),
		v.Duplicates(claims),
		v.NegativeDollars(claims),
		v.MissingParentPaid(claims),
		v.BenefitPlan(claims),
		v.VoidLinkages(claims),
		v.ClaimShape(claims),
	}
}

// FrequencyCodes flags claims whose frequency code is outside the enumerated set.
func (v *Validator) FrequencyCodes(claims []model.Claim) model.Finding {
	var bad []string
	for _, c := range claims {
		if !c.FrequencyCode.Valid() {
			bad = append(bad, c.ClaimID)
		}
	}
	return v.flag(CheckFrequencyCodes, model.SeverityWarning, bad,
		"all frequency codes valid", "%d claims have an invalid frequency code")
}

// Identifiers flags claims lacking the identity fields their PaymentCenter
// type needs: tin or npi for PROVIDER, member id for DMR.
func (v *Validator) Identifiers(claims []model.Claim) model.Finding {
	var bad []string
	for _, c := range claims {
		var ok bool
		if v.pcType == model.PaymentCenterDMR {
			ok = strings.TrimSpace(c.MemberID) != ""
		} else {
			ok = strings.TrimSpace(c.TIN) != "" || strings.TrimSpace(c.NPI) != ""
		}
		if !ok {
			bad = append(bad, c.ClaimID)
		}
	}
	return v.flag(CheckIdentifiers, model.SeverityWarning, bad,
		"all claims carry payee identifiers", "%d claims are missing "+string(v.pcType)+" identifiers")
}

// Duplicates flags every repeat of a claim id; first occurrences are clean.
func (v *Validator) Duplicates(claims []model.Claim) model.Finding {
	seen := make(map[string]struct{}, len(claims))
	var dups []string
	for _, c := range claims {
		if _, ok := seen[c.ClaimID]; ok {
			dups = append(dups, c.ClaimID)
			continue
		}
		seen[c.ClaimID] = struct{}{}
	}
	return v.flag(CheckDuplicates, model.SeverityCritical, dups,
		"no duplicate claim ids", "%d duplicate claim ids")
}

// NegativeDollars flags claims with any negative allowed or billed amount.
func (v *Validator) NegativeDollars(claims []model.Claim) model.Finding {
	var bad []string
	for _, c := range claims {
		for _, l := range c.ServiceLines {
			if l.AllowedAmount < 0 || l.BilledAmount < 0 {
				bad = append(bad, c.ClaimID)
				break
			}
		}
	}
	return v.flag(CheckNegativeDollars, model.SeverityWarning, bad,
		"no negative dollar amounts", "%d claims have negative dollar amounts")
}

// MissingParentPaid flags CLOSED claims with no parent lineage.
func (v *Validator) MissingParentPaid(claims []model.Claim) model.Finding {
	var bad []string
	for _, c := range claims {
		if c.ParentClaimCoreID == "" && c.Status == model.ClaimStatusClosed {
			bad = append(bad, c.ClaimID)
		}
	}
	return v.flag(CheckMissingParentPaid, model.SeverityWarning, bad,
		"all closed claims have a parent", "%d closed claims have no parent claim")
}

// BenefitPlan flags claims with a plan outside the allowed set. Claims without
// a plan are not flagged; with no allowed plans the check is skipped.
func (v *Validator) BenefitPlan(claims []model.Claim) model.Finding {
	if len(v.allowedPlans) == 0 {
		return v.record(model.Finding{Check: CheckBenefitPlan, Severity: model.SeverityInfo,
			Message: "no allowed plans configured; benefit plan check skipped"})
	}
	var bad []string
	for _, c := range claims {
		if c.BenefitPlanID == "" {
			continue
		}
		if _, ok := v.allowedPlans[c.BenefitPlanID]; !ok {
			bad = append(bad, c.ClaimID)
		}
	}
	return v.flag(CheckBenefitPlan, model.SeverityWarning, bad,
		"all benefit plans allowed", "%d claims have a benefit plan outside the event")
}

// VoidLinkages flags VOID claims with no parent to void.
func (v *Validator) VoidLinkages(claims []model.Claim) model.Finding {
	var bad []string
	for _, c := range claims {
		if c.FrequencyCode == model.FrequencyVoid && c.ParentClaimCoreID == "" {
			bad = append(bad, c.ClaimID)
		}
	}
	return v.flag(CheckVoidLinkage, model.SeverityWarning, bad,
		"all void claims are linked", "%d void claims have no parent claim")
}

// ClaimShape flags claims with an unknown claim type or status.
func (v *Validator) ClaimShape(claims []model.Claim) model.Finding {
	var bad []string
	for _, c := range claims {
		if !c.ClaimType.Valid() || !c.Status.Valid() {
			bad = append(bad, c.ClaimID)
		}
	}
	return v.flag(CheckClaimShape, model.SeverityWarning, bad,
		"all claim types and statuses known", "%d claims have an unknown type or status")
}

// PaymentCenters blocks while any key is still unresolved. A clean summary is
// INFO and reports how many centers were created; provisional marks dry-run
// ids that were never persisted.
func (v *Validator) PaymentCenters(summary *model.PaymentCenterSummary, provisional bool) model.Finding {
	if summary == nil {
		summary = &model.PaymentCenterSummary{}
	}
	if len(summary.MissingKeys) > 0 {
		return v.flag(CheckPaymentCenters, model.SeverityCritical, summary.MissingKeys,
			"", "%d PaymentCenter keys unresolved")
	}
	created := len(summary.CreatedProdIDs)
	msg := fmt.Sprintf("%d PaymentCenters resolved, %d created", len(summary.ExistingIDs)+created, created)
	if provisional {
		msg = fmt.Sprintf("%d PaymentCenters resolved, %d provisional", len(summary.ExistingIDs)+created, created)
	}
	return v.record(model.Finding{Check: CheckPaymentCenters, Severity: model.SeverityInfo, Message: msg, Count: created})
}

// Sequences compares expected and actual counters. Keys present on only one
// side count as zero on the other.
func (v *Validator) Sequences(report model.SequenceReport) model.Finding {
	keys := make(map[string]struct{})
	for k := range report.Expected {
		keys[k] = struct{}{}
	}
	for k := range report.Actual {
		keys[k] = struct{}{}
	}
	var bad []string
	for _, k := range slices.Sorted(maps.Keys(keys)) {
		exp, act := report.Expected[k], report.Actual[k]
		if exp != act {
			bad = append(bad, fmt.Sprintf("%s:%d->%d", k, act, exp))
		}
	}
	return v.flag(CheckSequences, model.SeverityWarning, bad,
		"sequences match", "%d sequence mismatches")
}

// EventScope checks the event configuration against the run mode. A final run
// outside the ready or final stage is blocked.
func (v *Validator) EventScope(event *model.PaymentEvent, mode model.RunMode) model.Finding {
	sev := model.SeverityInfo
	var issues []string
	if len(event.AllowedPlans) == 0 {
		sev = model.SeverityWarning
		issues = append(issues, "no allowed plans configured")
	}
	if mode == model.RunModeFinal {
		if _, ok := finalStages[strings.ToLower(event.Stage)]; !ok {
			sev = model.SeverityCritical
			issues = append(issues, fmt.Sprintf("stage %q is not final-ready", event.Stage))
		}
	}
	if len(issues) == 0 {
		return v.record(model.Finding{Check: CheckEventScope, Severity: sev, Message: "event scope ok"})
	}
	return v.record(model.Finding{
		Check:     CheckEventScope,
		Severity:  sev,
		Message:   strings.Join(issues, "; "),
		Count:     len(issues),
		SampleIDs: []string{event.PaymentEventID},
	})
}

// UnknownIdentifiers blocks when any derived key fell back to UNKNOWN.
func (v *Validator) UnknownIdentifiers(keys map[string]struct{}) model.Finding {
	var bad []string
	for _, k := range paycenter.SortedKeys(keys) {
		if paycenter.IsUnknownKey(k) {
			bad = append(bad, k)
		}
	}
	return v.flag(CheckUnknownIdentifiers, model.SeverityCritical, bad,
		"all PaymentCenter keys identified", "%d PaymentCenter keys have no identifier")
}

// AllowedCenters warns about resolved centers outside the allowed ids. An
// empty allow list skips the check.
func (v *Validator) AllowedCenters(cache model.PaymentCenterCache, allowed []int64) model.Finding {
	if len(allowed) == 0 {
		return v.record(model.Finding{Check: CheckAllowedCenters, Severity: model.SeverityInfo,
			Message: "no PaymentCenter restriction configured"})
	}
	var bad []string
	for _, k := range slices.Sorted(maps.Keys(cache)) {
		if !slices.Contains(allowed, cache[k]) {
			bad = append(bad, fmt.Sprintf("%s=%d", k, cache[k]))
		}
	}
	return v.flag(CheckAllowedCenters, model.SeverityWarning, bad,
		"all PaymentCenters allowed", "%d PaymentCenters outside the inclusion criteria")
}

// Aggregate combines every captured finding with extra into a report.
func (v *Validator) Aggregate(extra ...model.Finding) model.ValidationReport {
	all := make([]model.Finding, 0, len(v.findings)+len(extra))
	all = append(all, v.findings...)
	all = append(all, extra...)
	return model.NewValidationReport(all)
}

// RaiseIfBlocking returns a CriticalValidation error listing every CRITICAL
// finding when the report is blocked, and nil otherwise.
func RaiseIfBlocking(report model.ValidationReport, mode model.RunMode) error {
	if !report.Blocked {
		return nil
	}
	crit := report.Critical()
	parts := make([]string, 0, len(crit))
	for _, f := range crit {
		parts = append(parts, fmt.Sprintf("%s (%d)", f.Message, f.Count))
	}
	return payerr.New(payerr.KindCriticalValidation, "validation.RaiseIfBlocking",
		"%s run blocked: %s", mode, strings.Join(parts, "; ")).
		With("critical_findings", len(crit))
}
