package analytics

import (
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
)

var ErrInvalidQuery = errors.New("invalid query")

const MaxTopN = 100

type GroupBy string

const (
	GroupNone    GroupBy = ""
	GroupRegion  GroupBy = "region"
	GroupSchool  GroupBy = "school"
	GroupClass   GroupBy = "class"
	GroupSubject GroupBy = "subject"
)

var GroupBys = []GroupBy{GroupRegion, GroupSchool, GroupClass, GroupSubject}

// compatibleGroups lists, per entity type, the dimensions its records can be grouped by.
var compatibleGroups = map[metric.EntityType][]GroupBy{
	metric.EntityStudent: {GroupRegion, GroupSchool, GroupClass, GroupSubject},
	metric.EntityTeacher: {GroupRegion, GroupSchool, GroupClass, GroupSubject},
	metric.EntityVendor:  {GroupRegion, GroupSchool},
	metric.EntitySchool:  {GroupRegion},
}

func (g GroupBy) IsValid() bool {
	if g == GroupNone {
		return true
	}
	for _, known := range GroupBys {
		if g == known {
			return true
		}
	}
	return false
}

// CompatibleWith reports whether records of et can be grouped by g.
func (g GroupBy) CompatibleWith(et metric.EntityType) bool {
	if g == GroupNone {
		return true
	}
	for _, c := range compatibleGroups[et] {
		if g == c {
			return true
		}
	}
	return false
}

// Query describes one aggregation. Region and SchoolID only narrow the caller's scope.
type Query struct {
	EntityType metric.EntityType `json:"entity_type"`
	Range      metric.TimeRange  `json:"range"`
	Region     string            `json:"region,omitempty"`
	SchoolID   string            `json:"school_id,omitempty"`
	GroupBy    GroupBy           `json:"group_by,omitempty"`
	Fields     []string          `json:"fields"`
	RankBy     string            `json:"rank_by,omitempty"`
	Distribute string            `json:"distribute,omitempty"`
	TopN       int               `json:"top_n,omitempty"`
}

func (q Query) Validate() error {
	switch {
	case !q.EntityType.IsValid():
		return errors.Wrapf(ErrInvalidQuery, "unknown entity type %q", q.EntityType)
	case len(q.Fields) == 0:
		return errors.Wrap(ErrInvalidQuery, "at least one field is required")
	case !q.GroupBy.IsValid():
		return errors.Wrapf(ErrInvalidQuery, "unknown group by %q", q.GroupBy)
	case !q.GroupBy.CompatibleWith(q.EntityType):
		return errors.Wrapf(ErrInvalidQuery, "%s records cannot be grouped by %s", q.EntityType, q.GroupBy)
	case q.TopN < 0:
		return errors.Wrap(ErrInvalidQuery, "top_n must be positive")
	case !q.Range.IsValid():
		return errors.Wrap(ErrInvalidQuery, "range is inverted")
	}
	return nil
}

func (q Query) rankField() string {
	if q.RankBy != "" {
		return q.RankBy
	}
	return q.Fields[0]
}

func (q Query) topN(fallback int) int {
	n := q.TopN
	if n == 0 {
		n = fallback
	}
	if n <= 0 {
		n = 10
	}
	if n > MaxTopN {
		n = MaxTopN
	}
	return n
}

func (q Query) matches(r metric.Record) bool {
	if r.EntityType != q.EntityType {
		return false
	}
	if q.Region != "" && r.Region != q.Region {
		return false
	}
	if q.SchoolID != "" && r.SchoolID != q.SchoolID {
		return false
	}
	return true
}

func (q Query) groupKey(r metric.Record) string {
	switch q.GroupBy {
	case GroupRegion:
		return r.Region
	case GroupSchool:
		return r.SchoolID
	case GroupClass:
		if r.ClassLabel == "" {
			return ""
		}
		return r.SchoolID + "/" + r.ClassLabel
	case GroupSubject:
		l, _ := r.Label(metric.FieldSubject)
		return l
	}
	return ""
}
