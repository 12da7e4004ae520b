package irt

import "sort"

// Item is a candidate for administration. ID is whatever the caller uses to
// look the item up again.
type Item[ID comparable] struct {
	ID         ID      `json:"id"`
	Difficulty float64 `json:"difficulty"`
}

// Ranked is an item with its information at a particular theta.
type Ranked[ID comparable] struct {
	ID          ID      `json:"id"`
	Difficulty  float64 `json:"difficulty"`
	Information float64 `json:"information"`
}

// RankItems orders the pool by information at theta, highest first. The sort
// is stable: items with equal information keep their pool order. The input
// slice is not modified.
func RankItems[ID comparable](theta float64, items []Item[ID]) []Ranked[ID] {
	ranked := make([]Ranked[ID], len(items))
	for i, it := range items {
		ranked[i] = Ranked[ID]{
			ID:          it.ID,
			Difficulty:  it.Difficulty,
			Information: Information(theta, it.Difficulty),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Information > ranked[j].Information
	})
	return ranked
}

// SelectAdaptiveItems returns up to count item ids with the most information
// at theta, in descending information order.
func SelectAdaptiveItems[ID comparable](theta float64, items []Item[ID], count int) []ID {
	if count <= 0 || len(items) == 0 {
		return []ID{}
	}

	ranked := RankItems(theta, items)
	if count > len(ranked) {
		count = len(ranked)
	}

	ids := make([]ID, count)
	for i := 0; i < count; i++ {
		ids[i] = ranked[i].ID
	}
	return ids
}
