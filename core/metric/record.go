package metric

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

type EntityType string

const (
	EntityStudent EntityType = "student"
	EntityTeacher EntityType = "teacher"
	EntityVendor  EntityType = "vendor"
	EntitySchool  EntityType = "school"
)

var EntityTypes = []EntityType{EntityStudent, EntityTeacher, EntityVendor, EntitySchool}

func (et EntityType) IsValid() bool {
	for _, t := range EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// well-known fields
const (
	FieldScore            = "score"
	FieldAttendanceRate   = "attendanceRate"
	FieldPunctuality      = "punctuality"
	FieldPerformance      = "performanceRating"
	FieldComplianceStatus = "complianceStatus"
	FieldSubject          = "subject"
)

var ErrInvalidRecord = errors.New("invalid metric record")

// Record is one observation about an entity for a period.
// Records are append-only: a later period supersedes an earlier one, nothing is updated in place.
type Record struct {
	EntityID     string             `json:"entity_id" db:"entity_id"`
	EntityType   EntityType         `json:"entity_type" db:"entity_type"`
	Region       string             `json:"region" db:"region"`
	SchoolID     string             `json:"school_id" db:"school_id"`
	ClassLabel   string             `json:"class_label,omitempty" db:"class_label"`
	AcademicYear string             `json:"academic_year" db:"academic_year"`
	RecordedAt   time.Time          `json:"recorded_at" db:"recorded_at"`
	Numeric      map[string]float64 `json:"numeric,omitempty" db:"-"`
	Categorical  map[string]string  `json:"categorical,omitempty" db:"-"`
}

// Path locates the record in the organization hierarchy.
func (r Record) Path() scope.Path {
	p := make(scope.Path, 0, 3)
	for _, seg := range []string{r.Region, r.SchoolID, r.ClassLabel} {
		if seg == "" {
			break
		}
		p = append(p, seg)
	}
	return p
}

// Value returns the numeric field `name`, if recorded as a finite number.
func (r Record) Value(name string) (float64, bool) {
	v, ok := r.Numeric[name]
	return v, ok && isFinite(v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Label returns the categorical field `name`, if recorded.
func (r Record) Label(name string) (string, bool) {
	l, ok := r.Categorical[name]
	return l, ok && l != ""
}

func (r Record) Validate() error {
	switch {
	case r.EntityID == "":
		return errors.Wrap(ErrInvalidRecord, "entity_id is required")
	case !r.EntityType.IsValid():
		return errors.Wrapf(ErrInvalidRecord, "unknown entity_type %q", r.EntityType)
	case r.RecordedAt.IsZero():
		return errors.Wrap(ErrInvalidRecord, "recorded_at is required")
	}

	names := make([]string, 0, len(r.Numeric))
	for name := range r.Numeric {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !isFinite(r.Numeric[name]) {
			return errors.Wrapf(ErrInvalidRecord, "numeric field %s is %v", name, r.Numeric[name])
		}
	}
	return nil
}

// TimeRange bounds records by academic year ("2023/2024", inclusive) and/or recording date ([From, To)).
// Zero bounds are open.
type TimeRange struct {
	YearFrom string    `json:"year_from,omitempty"`
	YearTo   string    `json:"year_to,omitempty"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
}

func (tr TimeRange) IsValid() bool {
	if tr.YearFrom != "" && tr.YearTo != "" && tr.YearFrom > tr.YearTo {
		return false
	}
	if !tr.From.IsZero() && !tr.To.IsZero() && !tr.From.Before(tr.To) {
		return false
	}
	return true
}

func (tr TimeRange) Includes(r Record) bool {
	if tr.YearFrom != "" && r.AcademicYear < tr.YearFrom {
		return false
	}
	if tr.YearTo != "" && r.AcademicYear > tr.YearTo {
		return false
	}
	if !tr.From.IsZero() && r.RecordedAt.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && !r.RecordedAt.Before(tr.To) {
		return false
	}
	return true
}

type (
	// Store reads metric records. Implementations should push the scope down but callers never rely on it.
	Store interface {
		QueryMetrics(ctx context.Context, entityType EntityType, filter scope.Filter, tr TimeRange) ([]Record, error)
	}

	Writer interface {
		AppendMetrics(ctx context.Context, records ...Record) error
	}
)

// Visible keeps the records of `recs` allowed by filter and inside tr.
func Visible(recs []Record, filter scope.Filter, tr TimeRange) []Record {
	kept := make([]Record, 0, len(recs))
	for _, r := range recs {
		if filter.Allows(r.EntityID, r.Path()) && tr.Includes(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Latest keeps the most recent record per entity, ordered by entity id.
func Latest(recs []Record) []Record {
	latest := make(map[string]Record, len(recs))
	for _, r := range recs {
		if cur, ok := latest[r.EntityID]; !ok || r.RecordedAt.After(cur.RecordedAt) {
			latest[r.EntityID] = r
		}
	}
	kept := make([]Record, 0, len(latest))
	for _, r := range latest {
		kept = append(kept, r)
	}
	sortByEntity(kept)
	return kept
}
