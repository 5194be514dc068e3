package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

// Unspecified collects the records missing the distributed label.
const Unspecified = "Unspecified"

// PerformanceRatings is the canonical order of performanceRating labels.
var PerformanceRatings = []string{"Excellent", "Good", "Satisfactory", "Needs Improvement", "Poor"}

type Engine struct {
	store       metric.Store
	defaultTopN int
}

func NewEngine(store metric.Store, defaultTopN int) *Engine {
	return &Engine{store: store, defaultTopN: defaultTopN}
}

// Summarize aggregates the records visible through filter.
// Every figure in the Result comes from the same snapshot of records.
func (e *Engine) Summarize(ctx context.Context, filter scope.Filter, q Query) (Result, error) {
	if filter.IsZero() {
		return Result{}, errors.Wrap(scope.ErrScopeDenied, "unresolved scope")
	}
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	recs, err := e.store.QueryMetrics(ctx, q.EntityType, filter, q.Range)
	if err != nil {
		return Result{}, errors.Wrap(err, "querying metrics")
	}

	// the store narrows for efficiency; visibility is enforced here
	recs = metric.Visible(recs, filter, q.Range)

	res := Aggregate(recs, q, e.defaultTopN)
	res.Scope = filter
	return res, nil
}

// Aggregate computes the statistics of q over recs. It does not apply any scope.
func Aggregate(recs []metric.Record, q Query, defaultTopN int) Result {
	snapshot := make([]metric.Record, 0, len(recs))
	for _, r := range recs {
		if q.matches(r) {
			snapshot = append(snapshot, r)
		}
	}

	res := Result{
		Query: q,
		Summary: Summary{
			Count:  len(snapshot),
			Fields: make(map[string]FieldStats, len(q.Fields)),
		},
		GeneratedAt: time.Now().UTC(),
	}
	for _, f := range q.Fields {
		res.Summary.Fields[f] = fieldStats(snapshot, f)
	}
	if q.Distribute != "" {
		res.Distribution = distribution(snapshot, q.Distribute)
	}
	if q.GroupBy != GroupNone {
		res.Rankings = rankings(snapshot, q, q.topN(defaultTopN))
	}
	return res
}

// fieldStats computes population statistics. Records without the field are ignored.
func fieldStats(recs []metric.Record, field string) FieldStats {
	var (
		st  FieldStats
		sum float64
	)
	for _, r := range recs {
		v, ok := r.Value(field)
		if !ok {
			continue
		}
		if st.Count == 0 || v < st.Min {
			st.Min = v
		}
		if st.Count == 0 || v > st.Max {
			st.Max = v
		}
		sum += v
		st.Count++
	}
	if st.Count == 0 {
		return st
	}
	st.Mean = sum / float64(st.Count)

	var sq float64
	for _, r := range recs {
		if v, ok := r.Value(field); ok {
			sq += (v - st.Mean) * (v - st.Mean)
		}
	}
	st.StdDev = math.Sqrt(sq / float64(st.Count))
	return st
}

func distribution(recs []metric.Record, field string) []Bucket {
	counts := make(map[string]int)
	var unspecified int
	for _, r := range recs {
		if l, ok := r.Label(field); ok {
			counts[l]++
		} else {
			unspecified++
		}
	}

	labels := make([]string, 0, len(counts)+len(PerformanceRatings))
	seen := make(map[string]bool, len(counts))
	if field == metric.FieldPerformance {
		for _, l := range PerformanceRatings {
			labels = append(labels, l)
			seen[l] = true
		}
	}
	others := make([]string, 0, len(counts))
	for l := range counts {
		if !seen[l] {
			others = append(others, l)
		}
	}
	sort.Strings(others)
	labels = append(labels, others...)

	total := len(recs)
	buckets := make([]Bucket, 0, len(labels)+1)
	for _, l := range labels {
		buckets = append(buckets, Bucket{Label: l, Count: counts[l], Percent: percentOf(counts[l], total)})
	}
	if unspecified > 0 {
		buckets = append(buckets, Bucket{Label: Unspecified, Count: unspecified, Percent: percentOf(unspecified, total)})
	}
	return buckets
}

func rankings(recs []metric.Record, q Query, topN int) []Rank {
	type group struct {
		count  int
		valued int
		sum    float64
	}
	field := q.rankField()
	groups := make(map[string]*group)
	for _, r := range recs {
		key := q.groupKey(r)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.count++
		if v, ok := r.Value(field); ok {
			g.sum += v
			g.valued++
		}
	}

	total := len(recs)
	ranks := make([]Rank, 0, len(groups))
	for key, g := range groups {
		if g.valued == 0 {
			continue
		}
		ranks = append(ranks, Rank{
			GroupKey: key,
			Mean:     g.sum / float64(g.valued),
			Count:    g.count,
			Share:    percentOf(g.count, total),
		})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Mean != ranks[j].Mean {
			return ranks[i].Mean > ranks[j].Mean
		}
		return ranks[i].GroupKey < ranks[j].GroupKey
	})
	if len(ranks) > topN {
		ranks = ranks[:topN]
	}
	for i := range ranks {
		ranks[i].Position = i + 1
	}
	return ranks
}
