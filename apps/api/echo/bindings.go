package echoapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

// queryBinder reads query params, collecting a field error per unparsable value.
type queryBinder struct {
	values url.Values
	errs   []core.FieldError
}

func newQueryBinder(ctx echo.Context) *queryBinder {
	return &queryBinder{values: ctx.QueryParams()}
}

func (b *queryBinder) string(name string) string {
	return core.CleanString(b.values.Get(name))
}

// list accepts repeated params and comma separated values.
func (b *queryBinder) list(name string) []string {
	var out []string
	for _, v := range b.values[name] {
		for _, item := range strings.Split(v, ",") {
			if item = core.CleanString(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func (b *queryBinder) int(name string) int {
	raw := b.string(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		b.errs = append(b.errs, core.FieldError{Field: name, Error: name + " must be an integer"})
	}
	return n
}

// time accepts RFC 3339 timestamps and plain dates.
func (b *queryBinder) time(name string) time.Time {
	raw := b.string(name)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	b.errs = append(b.errs, core.FieldError{Field: name, Error: name + " must be a date (YYYY-MM-DD) or an RFC 3339 timestamp"})
	return time.Time{}
}

func (b *queryBinder) err() error {
	if len(b.errs) == 0 {
		return nil
	}
	return core.NewValidationError(nil, b.errs...)
}

// target names every organization of the query: each one must be in scope.
func (b *queryBinder) target() scope.Target {
	t := scope.OrgTarget(b.string("region"), b.string("school_id"), b.string("organization_id"))
	t.SubjectID = b.string("subject_id")
	return t
}

func (b *queryBinder) timeRange() metric.TimeRange {
	year := b.string("academic_year")
	return metric.TimeRange{YearFrom: year, YearTo: year, From: b.time("date_from"), To: b.time("date_to")}
}


type summaryRequest struct {
	Target scope.Target
	Query  analytics.Query
}

func (req *summaryRequest) Bind(ctx echo.Context) error {
	b := newQueryBinder(ctx)
	req.Target = b.target()
	req.Query = analytics.Query{
		EntityType: metric.EntityType(core.CleanString(b.string("entity_type"), true /* lower */)),
		Range:      b.timeRange(),
		Region:     b.string("region"),
		SchoolID:   b.string("school_id"),
		GroupBy:    analytics.GroupBy(b.string("group_by")),
		Fields:     b.list("fields"),
		RankBy:     b.string("rank_by"),
		Distribute: b.string("distribute"),
		TopN:       b.int("top_n"),
	}
	return b.err()
}

type complianceRequest struct {
	Target scope.Target
	Query  compliance.OverviewQuery
}

func (req *complianceRequest) Bind(ctx echo.Context) error {
	b := newQueryBinder(ctx)
	req.Target = b.target()
	req.Query = compliance.OverviewQuery{
		Category: compliance.Category(b.string("category")),
		Range:    b.timeRange(),
	}
	return b.err()
}

// bindStatuses reads the `status` filter of instance listings.
func bindStatuses(ctx echo.Context) ([]report.Status, error) {
	b := newQueryBinder(ctx)
	raw := b.list("status")
	statuses := make([]report.Status, 0, len(raw))
	for _, s := range raw {
		st := report.Status(strings.ToLower(s))
		if !st.IsValid() {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown status " + s})
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
