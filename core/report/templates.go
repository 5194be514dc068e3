package report

import (
	"sort"

	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
)

type Type string

const (
	TypeStudentPerformance   Type = "student_performance"
	TypeTeacherPerformance   Type = "teacher_performance"
	TypeVendorCompliance     Type = "vendor_compliance"
	TypeSchoolOverview       Type = "school_overview"
	TypeAttendanceCompliance Type = "attendance_compliance"
)

// Template is the fixed aggregation a report type runs.
type Template struct {
	Type       Type
	EntityType metric.EntityType
	Fields     []string
	RankBy     string
	Distribute string
	GroupBy    analytics.GroupBy
	Compliance compliance.Category
}

var Templates = map[Type]Template{
	TypeStudentPerformance: {
		EntityType: metric.EntityStudent,
		Fields:     []string{metric.FieldScore, metric.FieldAttendanceRate},
		RankBy:     metric.FieldScore,
		Distribute: metric.FieldPerformance,
		GroupBy:    analytics.GroupSchool,
		Compliance: compliance.CategoryAcademic,
	},
	TypeTeacherPerformance: {
		EntityType: metric.EntityTeacher,
		Fields:     []string{metric.FieldScore, metric.FieldPunctuality},
		RankBy:     metric.FieldScore,
		Distribute: metric.FieldPerformance,
		GroupBy:    analytics.GroupSchool,
		Compliance: compliance.CategoryTeacherProfessional,
	},
	TypeVendorCompliance: {
		EntityType: metric.EntityVendor,
		Fields:     []string{"onTimeDelivery", "qualityScore", "contractAdherence"},
		RankBy:     "qualityScore",
		Distribute: metric.FieldComplianceStatus,
		GroupBy:    analytics.GroupRegion,
		Compliance: compliance.CategoryVendorDelivery,
	},
	TypeSchoolOverview: {
		EntityType: metric.EntitySchool,
		Fields:     []string{metric.FieldScore, metric.FieldAttendanceRate},
		RankBy:     metric.FieldScore,
		Distribute: metric.FieldPerformance,
		GroupBy:    analytics.GroupRegion,
		Compliance: compliance.CategorySchoolInfrastructure,
	},
	TypeAttendanceCompliance: {
		EntityType: metric.EntityStudent,
		Fields:     []string{metric.FieldAttendanceRate, metric.FieldPunctuality},
		RankBy:     metric.FieldAttendanceRate,
		Distribute: metric.FieldComplianceStatus,
		GroupBy:    analytics.GroupClass,
		Compliance: compliance.CategoryAttendance,
	},
}

// Types returns the known report types, sorted.
func Types() []Type {
	types := make([]Type, 0, len(Templates))
	for t := range Templates {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (t Type) IsValid() bool {
	_, ok := Templates[t]
	return ok
}

func (t Type) Template() (Template, bool) {
	tmpl, ok := Templates[t]
	tmpl.Type = t
	return tmpl, ok
}

// Query builds the aggregation for d. The definition's group by and top n override the template's.
func (tmpl Template) Query(d Definition) analytics.Query {
	q := analytics.Query{
		EntityType: tmpl.EntityType,
		Range:      d.Filters.Range(),
		Region:     d.Filters.Region,
		SchoolID:   d.Filters.SchoolID,
		GroupBy:    tmpl.GroupBy,
		Fields:     append([]string(nil), tmpl.Fields...),
		RankBy:     tmpl.RankBy,
		Distribute: tmpl.Distribute,
		TopN:       d.TopN,
	}
	if d.GroupBy != analytics.GroupNone {
		q.GroupBy = d.GroupBy
	}
	return q
}
