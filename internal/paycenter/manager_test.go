package paycenter

import (
	"strings"
	"testing"

	"github.com/gyeh/payrun/internal/model"
)

func TestDeriveKey_ProviderPriority(t *testing.T) {
	cases := []struct {
		claim model.Claim
		want  string
	}{
		{model.Claim{TIN: "T1", NPI: "N1", MemberID: "M1"}, "PROVIDER:T1"},
		{model.Claim{NPI: "N1", MemberID: "M1"}, "PROVIDER:N1"},
		{model.Claim{MemberID: "M1"}, "PROVIDER:M1"},
		{model.Claim{BenefitPlanID: "P1"}, "PROVIDER:UNKNOWN"},
		{model.Claim{TIN: "   "}, "PROVIDER:UNKNOWN"},
	}
	for _, tc := range cases {
		if got := DeriveKey(tc.claim, model.PaymentCenterProvider); got != tc.want {
			t.Errorf("DeriveKey(%+v): got %q, want %q", tc.claim, got, tc.want)
		}
	}
}

func TestDeriveKey_DMRPriority(t *testing.T) {
	if got := DeriveKey(model.Claim{TIN: "T1", MemberID: "M1", BenefitPlanID: "P1"}, model.PaymentCenterDMR); got != "DMR:M1" {
		t.Errorf("got %q", got)
	}
	if got := DeriveKey(model.Claim{TIN: "T1", BenefitPlanID: "P1"}, model.PaymentCenterDMR); got != "DMR:P1" {
		t.Errorf("got %q", got)
	}
	if got := DeriveKey(model.Claim{TIN: "T1"}, model.PaymentCenterDMR); got != "DMR:UNKNOWN" {
		t.Errorf("got %q", got)
	}
}

func TestDeriveUniqueKeys_NeverEmptySegment(t *testing.T) {
	m := NewManager()
	claims := []model.Claim{{}, {TIN: "A"}, {TIN: "A"}, {NPI: "B"}}
	keys := m.DeriveUniqueKeys(claims, model.PaymentCenterProvider)
	if len(keys) != 3 {
		t.Fatalf("expected 3 unique keys, got %v", SortedKeys(keys))
	}
	for k := range keys {
		if strings.HasSuffix(k, ":") {
			t.Errorf("key %q has empty identifier", k)
		}
	}
	if !IsUnknownKey("PROVIDER:UNKNOWN") || IsUnknownKey("PROVIDER:A") {
		t.Error("IsUnknownKey mismatch")
	}
}

func keySet(keys ...string) map[string]struct{} {
	s := make(map[string]struct{})
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func TestSyncCreateBuild(t *testing.T) {
	m := NewManagerFrom(model.PaymentCenterCache{"PROVIDER:B": 7})

	summary := m.SyncToWS(keySet("PROVIDER:C", "PROVIDER:A", "PROVIDER:B"))
	if len(summary.ExistingIDs) != 1 || summary.ExistingIDs[0] != 7 {
		t.Errorf("ExistingIDs: got %v", summary.ExistingIDs)
	}
	if strings.Join(summary.MissingKeys, ",") != "PROVIDER:A,PROVIDER:C" {
		t.Errorf("MissingKeys should be sorted, got %v", summary.MissingKeys)
	}

	created := m.CreateMissingInProd(summary)
	if created["PROVIDER:A"] != 8 || created["PROVIDER:C"] != 9 {
		t.Errorf("ids should continue after seeded max in sorted key order, got %v", created)
	}
	if len(summary.CreatedWSIDs) != 2 || len(summary.CreatedProdIDs) != 2 {
		t.Errorf("created lists: ws=%v prod=%v", summary.CreatedWSIDs, summary.CreatedProdIDs)
	}

	t.Run("idempotent", func(t *testing.T) {
		again := m.CreateMissingInProd(summary)
		if again["PROVIDER:A"] != 8 || again["PROVIDER:C"] != 9 {
			t.Errorf("second create changed ids: %v", again)
		}
		if len(summary.CreatedProdIDs) != 2 {
			t.Errorf("second create appended ids: %v", summary.CreatedProdIDs)
		}
		if m.NextID() != 10 {
			t.Errorf("NextID: got %d, want 10", m.NextID())
		}
	})

	t.Run("build_cache_subset", func(t *testing.T) {
		m.CreateMissingInProd(&model.PaymentCenterSummary{MissingKeys: []string{"PROVIDER:Z"}})
		cache := m.BuildCache(summary)
		if len(cache) != 3 {
			t.Fatalf("expected 3 relevant entries, got %v", cache)
		}
		if _, ok := cache["PROVIDER:Z"]; ok {
			t.Error("cache should exclude ids outside the summary")
		}
	})

	t.Run("build_cache_empty_summary_returns_everything", func(t *testing.T) {
		cache := m.BuildCache(&model.PaymentCenterSummary{})
		if len(cache) != m.Len() {
			t.Errorf("empty summary: got %d entries, want full cache of %d", len(cache), m.Len())
		}
	})
}

func TestNewManager_StartsAtOne(t *testing.T) {
	m := NewManager()
	summary := m.SyncToWS(keySet("DMR:M2", "DMR:M1"))
	created := m.CreateMissingInProd(summary)
	if created["DMR:M1"] != 1 || created["DMR:M2"] != 2 {
		t.Errorf("got %v", created)
	}
}

func TestAdopt_UsesStoredIDs(t *testing.T) {
	m := NewManagerFrom(model.PaymentCenterCache{"PROVIDER:A": 4})
	summary := m.SyncToWS(keySet("PROVIDER:A", "PROVIDER:B", "PROVIDER:C"))
	created := m.CreateMissingInProd(summary)
	if created["PROVIDER:B"] != 5 || created["PROVIDER:C"] != 6 {
		t.Fatalf("proposed ids: %v", created)
	}

	m.Adopt(summary, map[string]int64{"PROVIDER:B": 9, "PROVIDER:C": 6})
	if id, _ := m.Lookup("PROVIDER:B"); id != 9 {
		t.Errorf("PROVIDER:B = %d, want 9", id)
	}
	if len(summary.CreatedProdIDs) != 2 || summary.CreatedProdIDs[0] != 9 || summary.CreatedProdIDs[1] != 6 {
		t.Errorf("CreatedProdIDs = %v", summary.CreatedProdIDs)
	}
	if summary.CreatedWSIDs[0] != 9 {
		t.Errorf("CreatedWSIDs = %v", summary.CreatedWSIDs)
	}
	if m.NextID() != 10 {
		t.Errorf("NextID = %d, want 10", m.NextID())
	}
	cache := m.BuildCache(summary)
	if cache["PROVIDER:B"] != 9 || cache["PROVIDER:A"] != 4 {
		t.Errorf("cache = %v", cache)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	m := NewManager()
	clone := m.Clone()
	clone.CreateMissingInProd(clone.SyncToWS(keySet("PROVIDER:X")))
	if _, ok := m.Lookup("PROVIDER:X"); ok {
		t.Error("clone leaked a provisional id into the original")
	}
	if m.NextID() != 1 {
		t.Errorf("original NextID moved: %d", m.NextID())
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	m := NewManagerFrom(model.PaymentCenterCache{"PROVIDER:A": 1})
	snap := m.Snapshot()
	snap["PROVIDER:B"] = 2
	if _, ok := m.Lookup("PROVIDER:B"); ok {
		t.Error("snapshot mutation reached the manager")
	}
}

func TestCenters(t *testing.T) {
	claims := []model.Claim{{ClaimID: "c1", TIN: "T1", NPI: "N1"}}
	centers := Centers(map[string]int64{"PROVIDER:T1": 4}, claims, model.PaymentCenterProvider)
	if len(centers) != 1 {
		t.Fatalf("got %d centers", len(centers))
	}
	c := centers[0]
	if c.PaymentCenterID != 4 || c.TaxID != "T1" || c.NPI != "N1" || c.Name != "PROVIDER T1" {
		t.Errorf("unexpected center: %+v", c)
	}
}
