// Package claims groups claims by parent lineage and attributes them to
// PaymentCenters.
package claims

import (
	"sort"

	"github.com/gyeh/payrun/internal/model"
)

// GroupByParent buckets claims per parent lineage. Groups are returned in
// ascending order of ParentID; claims keep arrival order within each bucket.
// Duplicate claim ids are kept. An empty input yields an empty, non-nil slice.
func GroupByParent(claims []model.Claim) []model.ParentGroup {
	index := make(map[string]int)
	groups := make([]model.ParentGroup, 0)
	for _, c := range claims {
		i, ok := index[c.ParentClaimCoreID]
		if !ok {
			i = len(groups)
			index[c.ParentClaimCoreID] = i
			groups = append(groups, model.ParentGroup{ParentID: c.ParentClaimCoreID})
		}
		groups[i].Add(c)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].ParentID < groups[b].ParentID
	})
	return groups
}
