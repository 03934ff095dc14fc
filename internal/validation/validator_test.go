package validation

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/payerr"
)

func claim(id string, mutate func(*model.Claim)) model.Claim {
	c := model.Claim{
		ClaimID:           id,
		ParentClaimCoreID: "P-" + id,
		ClaimType:         model.ClaimTypeMedical,
		Status:            model.ClaimStatusOpen,
		FrequencyCode:     model.FrequencyOriginal,
		TIN:               "T1",
		MemberID:          "M1",
		BenefitPlanID:     "PLAN-A",
		ServiceLines:      []model.ServiceLineCore{{AllowedAmount: 10, BilledAmount: 12}},
	}
	if mutate != nil {
		mutate(&c)
	}
	return c
}

func TestCleanClaimsAreInfo(t *testing.T) {
	v := New(model.PaymentCenterProvider, []string{"PLAN-A"})
	for _, f := range v.ClaimChecks([]model.Claim{claim("1", nil), claim("2", nil)}) {
		if f.Severity != model.SeverityInfo || f.Count != 0 || f.SampleIDs == nil {
			t.Errorf("%s: expected clean INFO, got %+v", f.Check, f)
		}
	}
	if v.Aggregate().Blocked {
		t.Error("clean report must not block")
	}
}

func TestDuplicatesBlock(t *testing.T) {
	v := New(model.PaymentCenterProvider, []string{"PLAN-A"})
	f := v.Duplicates([]model.Claim{claim("1", nil), claim("1", nil), claim("2", nil), claim("1", nil)})
	if f.Severity != model.SeverityCritical || f.Count != 2 {
		t.Fatalf("got %+v", f)
	}
	if len(f.SampleIDs) != 2 || f.SampleIDs[0] != "1" {
		t.Errorf("first occurrence must not be flagged: %v", f.SampleIDs)
	}

	report := v.Aggregate()
	if !report.Blocked {
		t.Fatal("duplicates alone must block")
	}
	err := RaiseIfBlocking(report, model.RunModeFinal)
	if !errors.Is(err, payerr.ErrCriticalValidation) {
		t.Fatalf("expected critical validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "2 duplicate claim ids (2)") || !strings.Contains(err.Error(), "final run blocked") {
		t.Errorf("message: %s", err)
	}
}

func TestRaiseIfBlocking_NoOp(t *testing.T) {
	report := model.NewValidationReport([]model.Finding{{Severity: model.SeverityWarning, Message: "x", Count: 1}})
	if err := RaiseIfBlocking(report, model.RunModeDryRun); err != nil {
		t.Errorf("warnings must not raise: %v", err)
	}
}

func TestRaiseIfBlocking_JoinsAllCritical(t *testing.T) {
	report := model.NewValidationReport([]model.Finding{
		{Severity: model.SeverityCritical, Message: "a", Count: 1},
		{Severity: model.SeverityInfo, Message: "ok"},
		{Severity: model.SeverityCritical, Message: "b", Count: 3},
	})
	err := RaiseIfBlocking(report, model.RunModeDryRun)
	if err == nil || !strings.Contains(err.Error(), "a (1); b (3)") {
		t.Errorf("got %v", err)
	}
}

func TestWarningChecks(t *testing.T) {
	cases := []struct {
		name  string
		check func(*Validator, []model.Claim) model.Finding
		bad   model.Claim
	}{
		{"frequency", (*Validator).FrequencyCodes, claim("x", func(c *model.Claim) { c.FrequencyCode = "9" })},
		{"identifiers", (*Validator).Identifiers, claim("x", func(c *model.Claim) { c.TIN = "" })},
		{"negative_billed", (*Validator).NegativeDollars, claim("x", func(c *model.Claim) { c.ServiceLines[0].BilledAmount = -1 })},
		{"negative_allowed", (*Validator).NegativeDollars, claim("x", func(c *model.Claim) { c.ServiceLines[0].AllowedAmount = -1 })},
		{"missing_parent", (*Validator).MissingParentPaid, claim("x", func(c *model.Claim) {
			c.ParentClaimCoreID = ""
			c.Status = model.ClaimStatusClosed
		})},
		{"benefit_plan", (*Validator).BenefitPlan, claim("x", func(c *model.Claim) { c.BenefitPlanID = "PLAN-Z" })},
		{"void_linkage", (*Validator).VoidLinkages, claim("x", func(c *model.Claim) {
			c.ParentClaimCoreID = ""
			c.FrequencyCode = model.FrequencyVoid
		})},
		{"claim_shape", (*Validator).ClaimShape, claim("x", func(c *model.Claim) { c.ClaimType = "VISION" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New(model.PaymentCenterProvider, []string{"PLAN-A"})
			f := tc.check(v, []model.Claim{claim("ok", nil), tc.bad})
			if f.Severity != model.SeverityWarning || f.Count != 1 || f.SampleIDs[0] != "x" {
				t.Errorf("got %+v", f)
			}
		})
	}
}

func TestIdentifiers_PerType(t *testing.T) {
	npiOnly := claim("n", func(c *model.Claim) { c.TIN = ""; c.NPI = "N1"; c.MemberID = "" })
	if f := New(model.PaymentCenterProvider, nil).Identifiers([]model.Claim{npiOnly}); f.Severity != model.SeverityInfo {
		t.Errorf("npi satisfies PROVIDER: %+v", f)
	}
	if f := New(model.PaymentCenterDMR, nil).Identifiers([]model.Claim{npiOnly}); f.Severity != model.SeverityWarning {
		t.Errorf("DMR requires member id: %+v", f)
	}
}

func TestVoidLinkage_ParentScenario(t *testing.T) {
	claims := []model.Claim{
		claim("1", func(c *model.Claim) { c.ParentClaimCoreID = "PARENT-1" }),
		claim("2", func(c *model.Claim) { c.ParentClaimCoreID = "PARENT-1"; c.FrequencyCode = model.FrequencyReplacement }),
		claim("3", func(c *model.Claim) { c.ParentClaimCoreID = ""; c.FrequencyCode = model.FrequencyVoid }),
	}
	f := New(model.PaymentCenterProvider, nil).VoidLinkages(claims)
	if f.Count != 1 || f.SampleIDs[0] != "3" {
		t.Errorf("got %+v", f)
	}
}

func TestBenefitPlan_SkippedAndEmptyPlan(t *testing.T) {
	f := New(model.PaymentCenterProvider, nil).BenefitPlan([]model.Claim{claim("1", nil)})
	if f.Severity != model.SeverityInfo || !strings.Contains(f.Message, "skipped") {
		t.Errorf("got %+v", f)
	}
	f = New(model.PaymentCenterProvider, []string{"PLAN-A"}).BenefitPlan([]model.Claim{claim("1", func(c *model.Claim) { c.BenefitPlanID = "" })})
	if f.Count != 0 {
		t.Errorf("empty plan must not be flagged: %+v", f)
	}
}

func TestSamplesCapped(t *testing.T) {
	var claims []model.Claim
	for i := range 12 {
		claims = append(claims, claim(fmt.Sprint(i), func(c *model.Claim) { c.FrequencyCode = "X" }))
	}
	f := New(model.PaymentCenterProvider, nil).FrequencyCodes(claims)
	if f.Count != 12 || len(f.SampleIDs) != model.MaxSampleIDs {
		t.Errorf("count=%d samples=%d", f.Count, len(f.SampleIDs))
	}
}

func TestPaymentCenters(t *testing.T) {
	v := New(model.PaymentCenterProvider, nil)
	f := v.PaymentCenters(&model.PaymentCenterSummary{MissingKeys: []string{"PROVIDER:A"}}, false)
	if f.Severity != model.SeverityCritical || f.SampleIDs[0] != "PROVIDER:A" {
		t.Errorf("got %+v", f)
	}
	f = v.PaymentCenters(&model.PaymentCenterSummary{ExistingIDs: []int64{1}, CreatedProdIDs: []int64{2, 3}}, false)
	if f.Severity != model.SeverityInfo || f.Message != "3 PaymentCenters resolved, 2 created" {
		t.Errorf("got %+v", f)
	}
	f = v.PaymentCenters(&model.PaymentCenterSummary{CreatedProdIDs: []int64{2}}, true)
	if !strings.Contains(f.Message, "1 provisional") {
		t.Errorf("got %+v", f)
	}
}

func TestSequences(t *testing.T) {
	v := New(model.PaymentCenterProvider, nil)
	f := v.Sequences(model.SequenceReport{
		Expected: map[string]int{"a": 3, "b": 2, "c": 1},
		Actual:   map[string]int{"a": 3, "b": 1, "d": 4},
	})
	if f.Severity != model.SeverityWarning || f.Count != 3 {
		t.Fatalf("got %+v", f)
	}
	want := []string{"b:1->2", "c:0->1", "d:4->0"}
	for i, s := range want {
		if f.SampleIDs[i] != s {
			t.Errorf("sample %d: got %q, want %q", i, f.SampleIDs[i], s)
		}
	}
	if f := v.Sequences(model.SequenceReport{}); f.Severity != model.SeverityInfo {
		t.Errorf("empty report should be clean: %+v", f)
	}
}

func TestEventScope(t *testing.T) {
	v := New(model.PaymentCenterProvider, nil)
	event := &model.PaymentEvent{PaymentEventID: "PE-1", Stage: "draft"}
	if f := v.EventScope(event, model.RunModeDryRun); f.Severity != model.SeverityWarning {
		t.Errorf("dry run without plans: %+v", f)
	}
	if f := v.EventScope(event, model.RunModeFinal); f.Severity != model.SeverityCritical {
		t.Errorf("final run in draft stage: %+v", f)
	}
	event.Stage = "Ready"
	event.AllowedPlans = []string{"PLAN-A"}
	if f := v.EventScope(event, model.RunModeFinal); f.Severity != model.SeverityInfo {
		t.Errorf("ready event: %+v", f)
	}
}

func TestUnknownIdentifiers(t *testing.T) {
	v := New(model.PaymentCenterProvider, nil)
	f := v.UnknownIdentifiers(map[string]struct{}{"PROVIDER:UNKNOWN": {}, "PROVIDER:T1": {}})
	if f.Severity != model.SeverityCritical || f.SampleIDs[0] != "PROVIDER:UNKNOWN" {
		t.Errorf("got %+v", f)
	}
}

func TestAllowedCenters(t *testing.T) {
	v := New(model.PaymentCenterProvider, nil)
	cache := model.PaymentCenterCache{"PROVIDER:A": 1, "PROVIDER:B": 2}
	if f := v.AllowedCenters(cache, nil); f.Severity != model.SeverityInfo {
		t.Errorf("no restriction: %+v", f)
	}
	f := v.AllowedCenters(cache, []int64{1})
	if f.Severity != model.SeverityWarning || f.SampleIDs[0] != "PROVIDER:B=2" {
		t.Errorf("got %+v", f)
	}
}

func TestAggregate_CombinesCapturedAndExtra(t *testing.T) {
	v := New(model.PaymentCenterProvider, nil)
	v.FrequencyCodes(nil)
	v.Duplicates(nil)
	report := v.Aggregate(model.Finding{Check: "external", Severity: model.SeverityCritical, Message: "x", Count: 1})
	if len(report.Findings) != 3 || report.Findings[2].Check != "external" {
		t.Fatalf("got %+v", report.Findings)
	}
	if !report.Blocked {
		t.Error("extra critical finding must block")
	}
	if len(v.Findings()) != 2 {
		t.Error("Aggregate must not capture extra findings")
	}
}
