package dummydb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

type MetricStore struct {
	db *metricTable
}

var (
	_ metric.Store  = (*MetricStore)(nil)
	_ metric.Writer = (*MetricStore)(nil)
)

func NewMetricStore(db *DB) *MetricStore {
	return &MetricStore{db: db.metric}
}

// QueryMetrics copies the matching records out under a read lock.
func (s *MetricStore) QueryMetrics(_ context.Context, et metric.EntityType, filter scope.Filter, tr metric.TimeRange) ([]metric.Record, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	recs := make([]metric.Record, 0)
	for _, r := range s.db.rows {
		if r.EntityType == et && filter.Allows(r.EntityID, r.Path()) && tr.Includes(r) {
			recs = append(recs, copyRecord(r))
		}
	}
	return recs, nil
}

func (s *MetricStore) AppendMetrics(_ context.Context, records ...metric.Record) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "record of %s", r.EntityID)
		}
	}

	s.db.Lock()
	defer s.db.Unlock()
	for _, r := range records {
		s.db.rows = append(s.db.rows, copyRecord(r))
	}
	return nil
}

// latestPath returns the path of the most recent record of a subject.
func (s *MetricStore) latestPath(subjectID string) (scope.Path, bool) {
	s.db.RLock()
	defer s.db.RUnlock()

	var (
		latest metric.Record
		found  bool
	)
	for _, r := range s.db.rows {
		if r.EntityID == subjectID && (!found || r.RecordedAt.After(latest.RecordedAt)) {
			latest, found = r, true
		}
	}
	return latest.Path(), found
}

func copyRecord(r metric.Record) metric.Record {
	c := r
	c.Numeric = make(map[string]float64, len(r.Numeric))
	for k, v := range r.Numeric {
		c.Numeric[k] = v
	}
	c.Categorical = make(map[string]string, len(r.Categorical))
	for k, v := range r.Categorical {
		c.Categorical[k] = v
	}
	return c
}
