package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

var (
	metricColumns = []string{
		"entity_id", "entity_type", "region", "school_id", "class_label",
		"academic_year", "recorded_at", "numeric", "categorical",
	}

	// pathColumns are the metric columns matching each segment of a scope.Path.
	pathColumns = []string{"region", "school_id", "class_label"}
)

type metricRow struct {
	metric.Record
	NumericJSON     types.JSONText `db:"numeric"`
	CategoricalJSON types.JSONText `db:"categorical"`
}

func (row metricRow) record() (metric.Record, error) {
	r := row.Record
	if len(row.NumericJSON) > 0 {
		if err := row.NumericJSON.Unmarshal(&r.Numeric); err != nil {
			return r, errors.Wrap(err, "decoding numeric fields")
		}
	}
	if len(row.CategoricalJSON) > 0 {
		if err := row.CategoricalJSON.Unmarshal(&r.Categorical); err != nil {
			return r, errors.Wrap(err, "decoding categorical fields")
		}
	}
	return r, nil
}

type MetricStore struct {
	db *sqlx.DB
}

var (
	_ metric.Store  = (*MetricStore)(nil)
	_ metric.Writer = (*MetricStore)(nil)
)

func NewMetricStore(db *sqlx.DB) *MetricStore {
	return &MetricStore{db: db}
}

// scopePredicate pushes a scope filter down to SQL. ok is false when the filter sees nothing.
func scopePredicate(f scope.Filter) (pred sq.Sqlizer, ok bool) {
	switch f.Visibility() {
	case scope.VisibilityFull:
		return nil, true
	case scope.VisibilitySubtree:
		or := sq.Or{}
		for _, root := range f.Roots() {
			if len(root) == 0 {
				return nil, true
			}
			if len(root) > len(pathColumns) {
				root = root[:len(pathColumns)]
			}
			and := sq.And{}
			for i, seg := range root {
				and = append(and, sq.Eq{pathColumns[i]: seg})
			}
			or = append(or, and)
		}
		return or, true
	case scope.VisibilitySelf:
		return sq.Eq{"entity_id": f.Subjects()}, true
	}
	return nil, false
}

func (s *MetricStore) QueryMetrics(ctx context.Context, et metric.EntityType, filter scope.Filter, tr metric.TimeRange) ([]metric.Record, error) {
	pred, ok := scopePredicate(filter)
	if !ok {
		return []metric.Record{}, nil
	}

	qb := psql.Select(metricColumns...).From("metric_records").Where(sq.Eq{"entity_type": string(et)})
	if pred != nil {
		qb = qb.Where(pred)
	}
	if tr.YearFrom != "" {
		qb = qb.Where(sq.GtOrEq{"academic_year": tr.YearFrom})
	}
	if tr.YearTo != "" {
		qb = qb.Where(sq.LtOrEq{"academic_year": tr.YearTo})
	}
	if !tr.From.IsZero() {
		qb = qb.Where(sq.GtOrEq{"recorded_at": tr.From})
	}
	if !tr.To.IsZero() {
		qb = qb.Where(sq.Lt{"recorded_at": tr.To})
	}
	query, args, err := qb.OrderBy("recorded_at", "id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building metrics query")
	}

	var rows []metricRow
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying metrics")
	}

	recs := make([]metric.Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, errors.Wrapf(err, "record of %s", row.EntityID)
		}
		recs = append(recs, r)
	}
	// SQL comparisons on the path columns match the in-memory semantics; re-check anyway
	return metric.Visible(recs, filter, tr), nil
}

func (s *MetricStore) AppendMetrics(ctx context.Context, records ...metric.Record) error {
	if len(records) == 0 {
		return nil
	}

	ib := psql.Insert("metric_records").Columns(metricColumns...)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "record of %s", r.EntityID)
		}
		num, err := toJSON(r.Numeric, "{}")
		if err != nil {
			return errors.Wrapf(err, "encoding numeric fields of %s", r.EntityID)
		}
		cat, err := toJSON(r.Categorical, "{}")
		if err != nil {
			return errors.Wrapf(err, "encoding categorical fields of %s", r.EntityID)
		}
		ib = ib.Values(r.EntityID, string(r.EntityType), r.Region, r.SchoolID, r.ClassLabel,
			r.AcademicYear, r.RecordedAt.UTC(), num, cat)
	}

	if _, err := execAffected(ctx, s.db, ib); err != nil {
		return errors.Wrap(err, "inserting metrics")
	}
	return nil
}
