package metric

import "sort"

func sortByEntity(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].EntityID == recs[j].EntityID {
			return recs[i].RecordedAt.Before(recs[j].RecordedAt)
		}
		return recs[i].EntityID < recs[j].EntityID
	})
}
