package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

var asOf = time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)

func newScorer(t *testing.T) *Scorer {
	s, err := NewScorer()
	require.NoError(t, err)
	return s
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		score      float64
		wantStatus Status
		wantTier   Tier
	}{
		{100, StatusCompliant, TierExcellent},
		{90, StatusCompliant, TierExcellent},
		{89.99, StatusWarning, TierFair},
		{70, StatusWarning, TierFair},
		{69.99, StatusNonCompliant, TierPoor},
		{0, StatusNonCompliant, TierPoor},
	}
	for _, tt := range tests {
		status, tier := StatusOf(tt.score)
		if status != tt.wantStatus || tier != tt.wantTier {
			t.Errorf("StatusOf(%v) = %v, %v; want %v, %v", tt.score, status, tier, tt.wantStatus, tt.wantTier)
		}
	}
}

func TestScorer_Score(t *testing.T) {
	s := newScorer(t)

	tests := []struct {
		name       string
		category   Category
		values     map[string]float64
		wantScore  float64
		wantStatus Status
		wantErr    error
	}{
		{
			name: "all components", category: CategoryVendorDelivery,
			values:    map[string]float64{"onTimeDelivery": 95, "qualityScore": 90, "contractAdherence": 100},
			wantScore: 94.5, wantStatus: StatusCompliant,
		},
		{
			name: "missing component is renormalized", category: CategoryVendorDelivery,
			values:    map[string]float64{"onTimeDelivery": 80, "qualityScore": 60},
			wantScore: 70.67, wantStatus: StatusWarning, // (80*.4 + 60*.35) / .75
		},
		{
			name: "values are clamped", category: CategoryAttendance,
			values:    map[string]float64{metric.FieldAttendanceRate: 140, metric.FieldPunctuality: -20},
			wantScore: 70, wantStatus: StatusWarning,
		},
		{
			name: "poor", category: CategoryAttendance,
			values:    map[string]float64{metric.FieldAttendanceRate: 50},
			wantScore: 50, wantStatus: StatusNonCompliant,
		},
		{
			name: "no component", category: CategorySchoolInfrastructure,
			values:     map[string]float64{"unrelated": 99},
			wantStatus: StatusUnscored, wantErr: ErrInsufficientData,
		},
		{name: "unknown category", category: "catering", wantErr: ErrUnknownCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Score("sub-1", tt.category, Inputs{Values: tt.values, AsOf: asOf})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Score() error = %v, wantErr %v", err, tt.wantErr)
				}
				if tt.wantStatus != "" {
					assert.Equal(t, tt.wantStatus, got.Status)
					assert.False(t, got.Scored)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.True(t, got.Scored)
			assert.Equal(t, asOf, got.LastEvaluated)

			var weights float64
			for _, c := range got.Components {
				weights += c.Weight
			}
			assert.InDelta(t, 1, weights, 1e-9)
		})
	}
}

func TestScorer_Score_idempotent(t *testing.T) {
	s := newScorer(t)
	in := Inputs{
		Values: map[string]float64{
			metric.FieldAttendanceRate: 91.3, "lessonPlanSubmission": 77.7, metric.FieldPunctuality: 83.1, "professionalDevelopment": 64.9,
		},
		AsOf: asOf,
	}
	first, err := s.Score("teach-1", CategoryTeacherProfessional, in)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := s.Score("teach-1", CategoryTeacherProfessional, in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestValidateWeights(t *testing.T) {
	assert.NoError(t, ValidateWeights(DefaultWeights))

	tests := []struct {
		name string
		cws  []CategoryWeights
	}{
		{name: "sum above 1", cws: []CategoryWeights{{Category: "x", EntityType: metric.EntityStudent, Weights: []Weight{{"a", 0.6}, {"b", 0.6}}}}},
		{name: "sum below 1", cws: []CategoryWeights{{Category: "x", EntityType: metric.EntityStudent, Weights: []Weight{{"a", 0.5}}}}},
		{name: "non positive", cws: []CategoryWeights{{Category: "x", EntityType: metric.EntityStudent, Weights: []Weight{{"a", 1.5}, {"b", -0.5}}}}},
		{name: "empty", cws: []CategoryWeights{{Category: "x", EntityType: metric.EntityStudent}}},
		{name: "bad entity", cws: []CategoryWeights{{Category: "x", EntityType: "parent", Weights: []Weight{{"a", 1}}}}},
		{
			name: "duplicate", cws: []CategoryWeights{
				{Category: "x", EntityType: metric.EntityStudent, Weights: []Weight{{"a", 1}}},
				{Category: "x", EntityType: metric.EntityStudent, Weights: []Weight{{"a", 1}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateWeights(tt.cws); !errors.Is(err, ErrInvalidWeights) {
				t.Errorf("ValidateWeights() error = %v, wantErr %v", err, ErrInvalidWeights)
			}
		})
	}
}

type sliceStore []metric.Record

func (s sliceStore) QueryMetrics(_ context.Context, et metric.EntityType, _ scope.Filter, _ metric.TimeRange) ([]metric.Record, error) {
	recs := make([]metric.Record, 0, len(s))
	for _, r := range s {
		if r.EntityType == et {
			recs = append(recs, r)
		}
	}
	return recs, nil
}

func TestScorer_Overview(t *testing.T) {
	s := newScorer(t)
	older := asOf.AddDate(0, -3, 0)
	store := sliceStore{
		{EntityID: "v2", EntityType: metric.EntityVendor, Region: "volta", SchoolID: "7", RecordedAt: asOf, Numeric: map[string]float64{"onTimeDelivery": 95, "qualityScore": 95, "contractAdherence": 95}},
		{EntityID: "v1", EntityType: metric.EntityVendor, Region: "volta", SchoolID: "7", RecordedAt: older, Numeric: map[string]float64{"onTimeDelivery": 10}},
		{EntityID: "v1", EntityType: metric.EntityVendor, Region: "volta", SchoolID: "7", RecordedAt: asOf, Numeric: map[string]float64{"onTimeDelivery": 75}},
		{EntityID: "v3", EntityType: metric.EntityVendor, Region: "volta", SchoolID: "7", RecordedAt: asOf},
		{EntityID: "v9", EntityType: metric.EntityVendor, Region: "ashanti", SchoolID: "9", RecordedAt: asOf, Numeric: map[string]float64{"onTimeDelivery": 75}},
	}
	volta, _ := scope.Subtree(scope.Path{"volta"})

	got, err := s.Overview(context.Background(), store, volta, OverviewQuery{Category: CategoryVendorDelivery})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "v1", got[0].SubjectID)
	assert.Equal(t, 75.0, got[0].Score, "latest record supersedes the older one")
	assert.Equal(t, StatusWarning, got[0].Status)
	assert.Equal(t, StatusCompliant, got[1].Status)
	assert.Equal(t, StatusUnscored, got[2].Status)

	_, err = s.Overview(context.Background(), store, volta, OverviewQuery{Category: "catering"})
	assert.True(t, errors.Is(err, ErrUnknownCategory))

	_, err = s.Overview(context.Background(), store, scope.Filter{}, OverviewQuery{})
	assert.True(t, errors.Is(err, scope.ErrScopeDenied))
}
