package compliance

import (
	"math"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
)

type Category string

const (
	CategoryAttendance           Category = "attendance"
	CategoryAcademic             Category = "academic"
	CategoryTeacherProfessional  Category = "teacher_professional"
	CategoryVendorDelivery       Category = "vendor_delivery"
	CategorySchoolInfrastructure Category = "school_infrastructure"
)

var ErrInvalidWeights = errors.New("invalid compliance weights")

// Weight is the share of one raw metric in a category score.
type Weight struct {
	Component string  `json:"component"`
	Weight    float64 `json:"weight"`
}

// CategoryWeights declares how a category is scored. Components are evaluated in order.
type CategoryWeights struct {
	Category   Category          `json:"category"`
	EntityType metric.EntityType `json:"entity_type"`
	Weights    []Weight          `json:"weights"`
}

// DefaultWeights are global: every subject of a category is scored the same way.
var DefaultWeights = []CategoryWeights{
	{
		Category:   CategoryAttendance,
		EntityType: metric.EntityStudent,
		Weights: []Weight{
			{Component: metric.FieldAttendanceRate, Weight: 0.7},
			{Component: metric.FieldPunctuality, Weight: 0.3},
		},
	},
	{
		Category:   CategoryAcademic,
		EntityType: metric.EntityStudent,
		Weights: []Weight{
			{Component: metric.FieldScore, Weight: 0.6},
			{Component: "assessmentCompletion", Weight: 0.25},
			{Component: "assignmentSubmission", Weight: 0.15},
		},
	},
	{
		Category:   CategoryTeacherProfessional,
		EntityType: metric.EntityTeacher,
		Weights: []Weight{
			{Component: metric.FieldAttendanceRate, Weight: 0.3},
			{Component: "lessonPlanSubmission", Weight: 0.3},
			{Component: metric.FieldPunctuality, Weight: 0.2},
			{Component: "professionalDevelopment", Weight: 0.2},
		},
	},
	{
		Category:   CategoryVendorDelivery,
		EntityType: metric.EntityVendor,
		Weights: []Weight{
			{Component: "onTimeDelivery", Weight: 0.4},
			{Component: "qualityScore", Weight: 0.35},
			{Component: "contractAdherence", Weight: 0.25},
		},
	},
	{
		Category:   CategorySchoolInfrastructure,
		EntityType: metric.EntitySchool,
		Weights: []Weight{
			{Component: "safety", Weight: 0.4},
			{Component: "sanitation", Weight: 0.3},
			{Component: "facilities", Weight: 0.3},
		},
	},
}

const weightTolerance = 1e-9

// ValidateWeights checks every category is declared once with positive weights summing to 1.0.
func ValidateWeights(cws []CategoryWeights) error {
	seen := make(map[Category]bool, len(cws))
	for _, cw := range cws {
		if seen[cw.Category] {
			return errors.Wrapf(ErrInvalidWeights, "%s declared twice", cw.Category)
		}
		seen[cw.Category] = true
		if !cw.EntityType.IsValid() {
			return errors.Wrapf(ErrInvalidWeights, "%s: unknown entity type %q", cw.Category, cw.EntityType)
		}
		if len(cw.Weights) == 0 {
			return errors.Wrapf(ErrInvalidWeights, "%s has no component", cw.Category)
		}
		var sum float64
		for _, w := range cw.Weights {
			if w.Weight <= 0 {
				return errors.Wrapf(ErrInvalidWeights, "%s.%s weight must be positive", cw.Category, w.Component)
			}
			sum += w.Weight
		}
		if math.Abs(sum-1) > weightTolerance {
			return errors.Wrapf(ErrInvalidWeights, "%s weights sum to %v", cw.Category, sum)
		}
	}
	return nil
}
