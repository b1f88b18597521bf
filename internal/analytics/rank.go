package analytics

import "sort"

// RankProducts orders product ids by units sold, ties broken by id, and
// keeps the first n. Stores without server-side ordering use it.
func RankProducts(units map[string]int64, n int) []string {
	ids := make([]string, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if units[ids[i]] != units[ids[j]] {
			return units[ids[i]] > units[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
