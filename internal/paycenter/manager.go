// Package paycenter derives PaymentCenter identity keys from claims and keeps
// the key to id cache of a run.
package paycenter

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/gyeh/payrun/internal/model"
)

// DeriveKey returns the composite key "{type}:{identifier}" for a claim.
// PROVIDER uses tin, npi, member id; DMR uses member id, benefit plan. The
// identifier falls back to UNKNOWN and is never empty.
func DeriveKey(c model.Claim, pcType model.PaymentCenterType) string {
	var candidates []string
	if pcType == model.PaymentCenterProvider {
		candidates = []string{c.TIN, c.NPI, c.MemberID}
	} else {
		candidates = []string{c.MemberID, c.BenefitPlanID}
	}
	identifier := model.UnknownIdentifier
	for _, v := range candidates {
		if v = strings.TrimSpace(v); v != "" {
			identifier = v
			break
		}
	}
	return string(pcType) + ":" + identifier
}

// SplitKey returns the type and identifier parts of a composite key.
func SplitKey(key string) (model.PaymentCenterType, string) {
	t, id, _ := strings.Cut(key, ":")
	return model.PaymentCenterType(t), id
}

// IsUnknownKey reports whether the key's identifier is the UNKNOWN fallback.
func IsUnknownKey(key string) bool {
	_, id := SplitKey(key)
	return id == model.UnknownIdentifier
}

// Manager owns the PaymentCenter cache of a run. Ids start at 1, are assigned
// in encounter order and are never reused. A Manager is not safe for
// concurrent use; workers receive a Snapshot instead.
type Manager struct {
	cache  model.PaymentCenterCache
	nextID int64
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{cache: make(model.PaymentCenterCache), nextID: 1}
}

// NewManagerFrom seeds a manager with centers already known to storage. The
// next id continues after the highest seeded id.
func NewManagerFrom(existing model.PaymentCenterCache) *Manager {
	m := NewManager()
	for k, id := range existing {
		m.cache[k] = id
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}
	return m
}

// DeriveUniqueKeys applies DeriveKey to every claim.
func (m *Manager) DeriveUniqueKeys(claims []model.Claim, pcType model.PaymentCenterType) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, c := range claims {
		keys[DeriveKey(c, pcType)] = struct{}{}
	}
	return keys
}

// SortedKeys returns the keys of a key set in ascending order.
func SortedKeys(keys map[string]struct{}) []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SyncToWS partitions keys into cached ids and missing keys, visiting keys in
// sorted order.
func (m *Manager) SyncToWS(keys map[string]struct{}) *model.PaymentCenterSummary {
	summary := &model.PaymentCenterSummary{
		ExistingIDs:    []int64{},
		MissingKeys:    []string{},
		CreatedWSIDs:   []int64{},
		CreatedProdIDs: []int64{},
	}
	for _, k := range SortedKeys(keys) {
		if id, ok := m.cache[k]; ok {
			summary.ExistingIDs = append(summary.ExistingIDs, id)
		} else {
			summary.MissingKeys = append(summary.MissingKeys, k)
		}
	}
	return summary
}

// CreateMissingInProd assigns ids to the summary's missing keys. Keys already
// cached keep their id and each id is recorded once per created list, so
// repeated calls are idempotent.
func (m *Manager) CreateMissingInProd(summary *model.PaymentCenterSummary) map[string]int64 {
	created := make(map[string]int64, len(summary.MissingKeys))
	for _, k := range summary.MissingKeys {
		id, ok := m.cache[k]
		if !ok {
			id = m.nextID
			m.nextID++
			m.cache[k] = id
		}
		if !slices.Contains(summary.CreatedWSIDs, id) {
			summary.CreatedWSIDs = append(summary.CreatedWSIDs, id)
		}
		if !slices.Contains(summary.CreatedProdIDs, id) {
			summary.CreatedProdIDs = append(summary.CreatedProdIDs, id)
		}
		created[k] = id
	}
	return created
}

// Adopt replaces the ids of stored keys with the ids storage assigned and
// rewrites the summary's created lists to match.
func (m *Manager) Adopt(summary *model.PaymentCenterSummary, stored map[string]int64) {
	for _, k := range slices.Sorted(maps.Keys(stored)) {
		id := stored[k]
		if old, ok := m.cache[k]; ok && old != id {
			summary.CreatedWSIDs = replaceID(summary.CreatedWSIDs, old, id)
			summary.CreatedProdIDs = replaceID(summary.CreatedProdIDs, old, id)
		}
		m.cache[k] = id
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}
}

func replaceID(ids []int64, old, id int64) []int64 {
	for i, v := range ids {
		if v == old {
			ids[i] = id
		}
	}
	return ids
}

// BuildCache returns the cached entries whose ids appear in the summary.
// When the summary names no ids at all the full cache is returned.
func (m *Manager) BuildCache(summary *model.PaymentCenterSummary) model.PaymentCenterCache {
	relevant := make(map[int64]struct{})
	for _, ids := range [][]int64{summary.ExistingIDs, summary.CreatedWSIDs, summary.CreatedProdIDs} {
		for _, id := range ids {
			relevant[id] = struct{}{}
		}
	}
	out := make(model.PaymentCenterCache)
	for k, id := range m.cache {
		if _, ok := relevant[id]; len(relevant) == 0 || ok {
			out[k] = id
		}
	}
	return out
}

// Snapshot returns an immutable copy of the cache for workers.
func (m *Manager) Snapshot() model.PaymentCenterCache {
	return maps.Clone(m.cache)
}

// Clone returns an independent manager; ids assigned on the clone never
// reach the original. Dry runs use it for provisional ids.
func (m *Manager) Clone() *Manager {
	return &Manager{cache: maps.Clone(m.cache), nextID: m.nextID}
}

// Lookup returns the id of a key.
func (m *Manager) Lookup(key string) (int64, bool) {
	id, ok := m.cache[key]
	return id, ok
}

// Len returns the number of cached centers.
func (m *Manager) Len() int { return len(m.cache) }

// NextID returns the id the next created center would receive.
func (m *Manager) NextID() int64 { return m.nextID }

// Centers builds PaymentCenter records for the given keys using the claims
// they were derived from, in ascending key order.
func Centers(created map[string]int64, claims []model.Claim, pcType model.PaymentCenterType) []model.PaymentCenter {
	sample := make(map[string]model.Claim)
	for _, c := range claims {
		k := DeriveKey(c, pcType)
		if _, ok := sample[k]; !ok {
			sample[k] = c
		}
	}
	keys := slices.Sorted(maps.Keys(created))
	out := make([]model.PaymentCenter, 0, len(keys))
	for _, k := range keys {
		_, ident := SplitKey(k)
		c := sample[k]
		out = append(out, model.PaymentCenter{
			PaymentCenterID: created[k],
			Key:             k,
			Type:            pcType,
			Name:            string(pcType) + " " + ident,
			TaxID:           c.TIN,
			NPI:             c.NPI,
			MemberID:        c.MemberID,
		})
	}
	return out
}
