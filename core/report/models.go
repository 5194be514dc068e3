package report

import (
	"time"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/schedule"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var Formats = []Format{FormatPDF, FormatXLSX, FormatCSV, FormatJSON}

func (f Format) IsValid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusDraft      Status = "draft"
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var Statuses = []Status{StatusDraft, StatusQueued, StatusGenerating, StatusCompleted, StatusFailed, StatusCancelled}

func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

var transitions = map[Status][]Status{
	StatusDraft:      {StatusQueued, StatusCancelled},
	StatusQueued:     {StatusGenerating, StatusCancelled},
	StatusGenerating: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusQueued}, // retry
}

// CanTransitionTo reports whether an instance may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsPending reports whether an instance in s has not started generating yet.
func (s Status) IsPending() bool { return s == StatusDraft || s == StatusQueued }

type FailureReason string

const (
	ReasonTimeout      FailureReason = "timeout"
	ReasonRender       FailureReason = "render_error"
	ReasonStorage      FailureReason = "storage_error"
	ReasonInvalidQuery FailureReason = "invalid_query"
	ReasonScopeDenied  FailureReason = "scope_denied"
	ReasonInternal     FailureReason = "internal"
)

type (
	// Filters narrow a definition. OrganizationID, SchoolID and Region must be visible to the owner.
	Filters struct {
		OrganizationID string    `json:"organization_id,omitempty"`
		SubjectID      string    `json:"subject_id,omitempty"`
		AcademicYear   string    `json:"academic_year,omitempty" validate:"omitempty,academicyear"`
		Region         string    `json:"region,omitempty"`
		SchoolID       string    `json:"school_id,omitempty"`
		DateFrom       time.Time `json:"date_from,omitempty"`
		DateTo         time.Time `json:"date_to,omitempty"`
	}

	Definition struct {
		ID           string             `json:"id"`
		Type         Type               `json:"type"`
		Title        string             `json:"title"`
		Owner        scope.Principal    `json:"owner"`
		Filters      Filters            `json:"filters"`
		Scope        scope.Filter       `json:"scope"`
		GroupBy      analytics.GroupBy  `json:"group_by,omitempty"`
		TopN         int                `json:"top_n,omitempty"`
		OutputFormat Format             `json:"output_format"`
		Recipients   []string           `json:"recipients"`
		Schedule     *schedule.Schedule `json:"schedule,omitempty"`
		CreatedAt    time.Time          `json:"created_at"`
		UpdatedAt    time.Time          `json:"updated_at"`
		DeletedAt    *time.Time         `json:"deleted_at,omitempty"`
	}

	Payload struct {
		Analytics  analytics.Result    `json:"analytics"`
		Compliance []compliance.Record `json:"compliance,omitempty"`
	}

	Failure struct {
		Reason    FailureReason `json:"reason"`
		Message   string        `json:"message"`
		Retryable bool          `json:"retryable"`
	}

	Artifact struct {
		Format     Format    `json:"format"`
		Ref        string    `json:"ref"`
		RenderedAt time.Time `json:"rendered_at"`
	}

	Instance struct {
		ID           string     `json:"id"`
		DefinitionID string     `json:"definition_id"`
		Status       Status     `json:"status"`
		Attempts     int        `json:"attempts"`
		Payload      *Payload   `json:"payload,omitempty"`
		Failure      *Failure   `json:"failure,omitempty"`
		ArtifactRef  string     `json:"artifact_ref,omitempty"`
		Artifacts    []Artifact `json:"artifacts"`
		CreatedAt    time.Time  `json:"created_at"`
		QueuedAt     *time.Time `json:"queued_at,omitempty"`
		StartedAt    *time.Time `json:"started_at,omitempty"`
		CompletedAt  *time.Time `json:"completed_at,omitempty"`
		UpdatedAt    time.Time  `json:"updated_at"`
	}
)

// Target is the organization or subject the filters point at, the most specific first.
// Target lists every organization the filters name, so that each one is checked
// against the owner's scope.
func (f Filters) Target() scope.Target {
	t := scope.OrgTarget(f.Region, f.SchoolID, f.OrganizationID)
	t.SubjectID = f.SubjectID
	return t
}

func (f Filters) Range() metric.TimeRange {
	return metric.TimeRange{YearFrom: f.AcademicYear, YearTo: f.AcademicYear, From: f.DateFrom, To: f.DateTo}
}

func (d Definition) IsDeleted() bool { return d.DeletedAt != nil }

func (d Definition) IsScheduled() bool { return d.Schedule != nil }

// CanBeManagedBy reports whether p may read or mutate d.
func (d Definition) CanBeManagedBy(p scope.Principal) bool {
	return p.IsAdmin() || (d.Owner.UserID == p.UserID && d.Owner.Role == p.Role)
}

// Clone deep copies inst so that callers never share slices with a store.
func (inst Instance) Clone() Instance {
	c := inst
	c.Artifacts = append([]Artifact(nil), inst.Artifacts...)
	if inst.Failure != nil {
		f := *inst.Failure
		c.Failure = &f
	}
	return c
}

func (d Definition) Clone() Definition {
	c := d
	c.Recipients = append([]string(nil), d.Recipients...)
	if d.Schedule != nil {
		s := *d.Schedule
		c.Schedule = &s
	}
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

type (
	ScheduleInput struct {
		Frequency  schedule.Frequency `json:"frequency" validate:"required,frequency"`
		FirstRunAt time.Time          `json:"first_run_at" validate:"required"`
		Enabled    *bool              `json:"enabled"`
	}

	NewDefinition struct {
		Type         Type              `json:"type" validate:"required,reporttype"`
		Title        string            `json:"title" validate:"max=200"`
		Filters      Filters           `json:"filters"`
		GroupBy      analytics.GroupBy `json:"group_by" validate:"omitempty,groupby"`
		TopN         int               `json:"top_n" validate:"gte=0,lte=100"`
		OutputFormat Format            `json:"output_format" validate:"required,outputformat"`
		Recipients   []string          `json:"recipients" validate:"omitempty,dive,email"`
		Schedule     *ScheduleInput    `json:"schedule"`
	}

	UpdateDefinition struct {
		Title        *string        `json:"title" validate:"omitempty,max=200"`
		OutputFormat *Format        `json:"output_format" validate:"omitempty,outputformat"`
		Recipients   []string       `json:"recipients" validate:"omitempty,dive,email"`
		TopN         *int           `json:"top_n" validate:"omitempty,gte=0,lte=100"`
		Schedule     *ScheduleInput `json:"schedule"`
		// Unschedule drops the schedule; it wins over Schedule.
		Unschedule bool `json:"unschedule"`
	}

	DefinitionFilter struct {
		OwnerID        string
		DueBefore      time.Time // scheduled, enabled definitions with NextRunAt <= DueBefore
		IncludeDeleted bool
		Limit          int
	}

	InstanceFilter struct {
		DefinitionID string
		Statuses     []Status
		Orderings    []core.DBOrdering
		Limit        int
	}
)

func (sf InstanceFilter) hasStatus(s Status) bool {
	if len(sf.Statuses) == 0 {
		return true
	}
	for _, st := range sf.Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Matches reports whether inst passes the filter (used by in-memory stores).
func (sf InstanceFilter) Matches(inst Instance) bool {
	if sf.DefinitionID != "" && inst.DefinitionID != sf.DefinitionID {
		return false
	}
	return sf.hasStatus(inst.Status)
}

// Matches reports whether d passes the filter (used by in-memory stores).
func (df DefinitionFilter) Matches(d Definition) bool {
	if !df.IncludeDeleted && d.IsDeleted() {
		return false
	}
	if df.OwnerID != "" && d.Owner.UserID != df.OwnerID {
		return false
	}
	if !df.DueBefore.IsZero() && (d.Schedule == nil || !d.Schedule.IsDue(df.DueBefore)) {
		return false
	}
	return true
}
