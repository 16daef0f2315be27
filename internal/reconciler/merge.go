package reconciler

import (
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/lineitem"
)

// Merge folds the anonymous cart into the remote one. Quantities of items present in
// both are summed and the remote row keeps its id, price and snapshot; anonymous-only
// items are appended as they are.
//
// The returned plan holds the absolute rows to write remotely. Writing the plan any
// number of times over the same remote state yields the same result.
func Merge(anonymous, remote []domain.LineItem) (merged lineitem.Items, plan []domain.LineItem) {
	merged = lineitem.Of(remote...)
	for _, item := range anonymous {
		if item.Quantity < 1 {
			continue
		}
		if i, ok := merged.IndexOfKey(item.Key()); ok {
			merged[i].Quantity += item.Quantity
			plan = upsertPlan(plan, merged[i])
			continue
		}
		merged = append(merged, item)
		plan = upsertPlan(plan, item)
	}
	return merged, plan
}

// Apply returns remote with every planned row written over it.
func Apply(remote []domain.LineItem, plan []domain.LineItem) lineitem.Items {
	out := lineitem.Of(remote...)
	for _, row := range plan {
		if i, ok := out.IndexOfKey(row.Key()); ok {
			out[i].Quantity = row.Quantity
			continue
		}
		out = append(out, row)
	}
	return out
}

func upsertPlan(plan []domain.LineItem, row domain.LineItem) []domain.LineItem {
	for i := range plan {
		if plan[i].Key() == row.Key() {
			plan[i] = row
			return plan
		}
	}
	return append(plan, row)
}
