package compliance

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrUnknownCategory  = errors.New("unknown compliance category")
)

type (
	Status string
	Tier   string
)

const (
	StatusCompliant    Status = "compliant"
	StatusWarning      Status = "warning"
	StatusNonCompliant Status = "non_compliant"
	StatusUnscored     Status = "unscored"

	TierExcellent Tier = "excellent"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
)

// thresholds
const (
	CompliantScore = 90.0
	WarningScore   = 70.0
)

// StatusOf derives the status and tier of a score.
func StatusOf(score float64) (Status, Tier) {
	switch {
	case score >= CompliantScore:
		return StatusCompliant, TierExcellent
	case score >= WarningScore:
		return StatusWarning, TierFair
	}
	return StatusNonCompliant, TierPoor
}

type (
	// Inputs are the raw metrics of one subject, all on a 0-100 scale.
	Inputs struct {
		Values map[string]float64
		AsOf   time.Time
	}

	Component struct {
		Name   string  `json:"name"`
		Value  float64 `json:"value"`
		Weight float64 `json:"weight"` // renormalized
	}

	Record struct {
		SubjectID     string      `json:"subject_id"`
		Category      Category    `json:"category"`
		Score         float64     `json:"score"`
		Status        Status      `json:"status"`
		Tier          Tier        `json:"tier,omitempty"`
		Scored        bool        `json:"scored"`
		Components    []Component `json:"components"`
		LastEvaluated time.Time   `json:"last_evaluated"`
	}
)

type Scorer struct {
	categories map[Category]CategoryWeights
	order      []Category
}

// NewScorer builds a scorer from declared weights (DefaultWeights when none).
func NewScorer(cws ...CategoryWeights) (*Scorer, error) {
	if len(cws) == 0 {
		cws = DefaultWeights
	}
	if err := ValidateWeights(cws); err != nil {
		return nil, err
	}
	s := &Scorer{categories: make(map[Category]CategoryWeights, len(cws))}
	for _, cw := range cws {
		s.categories[cw.Category] = cw
		s.order = append(s.order, cw.Category)
	}
	return s, nil
}

func (s *Scorer) Categories() []Category {
	cats := make([]Category, len(s.order))
	copy(cats, s.order)
	return cats
}

func (s *Scorer) Weights(c Category) (CategoryWeights, bool) {
	cw, ok := s.categories[c]
	return cw, ok
}

// Score computes the weighted compliance score of a subject.
// Missing components are dropped and the remaining weights renormalized.
// Without any component it returns an unscored Record along with ErrInsufficientData.
// Score is pure: the same inputs always give the same Record.
func (s *Scorer) Score(subjectID string, category Category, in Inputs) (Record, error) {
	cw, ok := s.categories[category]
	if !ok {
		return Record{}, errors.Wrapf(ErrUnknownCategory, "%q", category)
	}

	rec := Record{
		SubjectID:     subjectID,
		Category:      category,
		LastEvaluated: in.AsOf,
		Components:    make([]Component, 0, len(cw.Weights)),
	}

	var total float64
	for _, w := range cw.Weights {
		v, ok := in.Values[w.Component]
		if !ok || math.IsNaN(v) {
			continue
		}
		rec.Components = append(rec.Components, Component{Name: w.Component, Value: clamp(v), Weight: w.Weight})
		total += w.Weight
	}
	if len(rec.Components) == 0 {
		rec.Status = StatusUnscored
		return rec, errors.Wrapf(ErrInsufficientData, "%s has no %s component", subjectID, category)
	}

	var score float64
	for i := range rec.Components {
		rec.Components[i].Weight /= total
		score += rec.Components[i].Value * rec.Components[i].Weight
	}
	rec.Score = math.Round(score*100) / 100
	rec.Status, rec.Tier = StatusOf(rec.Score)
	rec.Scored = true
	return rec, nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// OverviewQuery selects what an overview covers. An empty Category covers all of them.
type OverviewQuery struct {
	Category Category         `json:"category,omitempty"`
	Range    metric.TimeRange `json:"range"`
}

// Overview scores the latest record of every subject visible through filter, ordered by category then subject.
// Subjects lacking data are listed as unscored.
func (s *Scorer) Overview(ctx context.Context, store metric.Store, filter scope.Filter, q OverviewQuery) ([]Record, error) {
	if filter.IsZero() {
		return nil, errors.Wrap(scope.ErrScopeDenied, "unresolved scope")
	}

	cats := s.order
	if q.Category != "" {
		if _, ok := s.categories[q.Category]; !ok {
			return nil, errors.Wrapf(ErrUnknownCategory, "%q", q.Category)
		}
		cats = []Category{q.Category}
	}

	// one query per entity type, shared by its categories
	byType := make(map[metric.EntityType][]metric.Record)
	out := make([]Record, 0)
	for _, c := range cats {
		cw := s.categories[c]
		recs, ok := byType[cw.EntityType]
		if !ok {
			fetched, err := store.QueryMetrics(ctx, cw.EntityType, filter, q.Range)
			if err != nil {
				return nil, errors.Wrapf(err, "querying %s metrics", cw.EntityType)
			}
			recs = metric.Latest(metric.Visible(fetched, filter, q.Range))
			byType[cw.EntityType] = recs
		}

		scored := make([]Record, 0, len(recs))
		for _, r := range recs {
			cr, err := s.Score(r.EntityID, c, Inputs{Values: r.Numeric, AsOf: r.RecordedAt})
			if err != nil && !errors.Is(err, ErrInsufficientData) {
				return nil, err
			}
			scored = append(scored, cr)
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].SubjectID < scored[j].SubjectID })
		out = append(out, scored...)
	}
	return out, nil
}
