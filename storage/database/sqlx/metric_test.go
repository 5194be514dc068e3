package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

func TestScopePredicate(t *testing.T) {
	subtree, err := scope.Subtree(scope.Path{"greater-accra", "42"})
	require.NoError(t, err)
	national, err := scope.Subtree(scope.Path{})
	require.NoError(t, err)
	self, err := scope.Self("stu-1", "stu-2")
	require.NoError(t, err)

	tests := []struct {
		name    string
		filter  scope.Filter
		ok      bool
		sql     string
		numArgs int
	}{
		{name: "full", filter: scope.Full(), ok: true},
		{name: "national subtree", filter: national, ok: true},
		{name: "school subtree", filter: subtree, ok: true, sql: "region = ? AND school_id = ?", numArgs: 2},
		{name: "self", filter: self, ok: true, sql: "entity_id IN (?,?)", numArgs: 2},
		{name: "unresolved", filter: scope.Filter{}, ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pred, ok := scopePredicate(tc.filter)
			assert.Equal(t, tc.ok, ok)
			if tc.sql == "" {
				assert.Nil(t, pred)
				return
			}
			require.NotNil(t, pred)
			sql, args, err := pred.ToSql()
			require.NoError(t, err)
			assert.Contains(t, sql, tc.sql)
			assert.Len(t, args, tc.numArgs)
		})
	}
}

func TestMetricStore_QueryMetrics(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewMetricStore(db)
	at := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	filter, err := scope.Subtree(scope.Path{"greater-accra", "42"})
	require.NoError(t, err)

	rows := sqlmock.NewRows(metricColumns).
		AddRow("stu-1", "student", "greater-accra", "42", "JHS1-A", "2023/2024", at,
			[]byte(`{"score": 70}`), []byte(`{"performanceRating": "Good"}`)).
		AddRow("stu-9", "student", "greater-accra", "43", "", "2023/2024", at,
			[]byte(`{}`), []byte(`{}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM metric_records WHERE entity_type = $1 AND ((region = $2 AND school_id = $3))")).
		WithArgs("student", "greater-accra", "42", "2023/2024", "2023/2024").
		WillReturnRows(rows)

	recs, err := store.QueryMetrics(context.Background(), metric.EntityStudent, filter,
		metric.TimeRange{YearFrom: "2023/2024", YearTo: "2023/2024"})
	require.NoError(t, err)

	// stu-9 is outside the subtree and dropped in memory
	require.Len(t, recs, 1)
	assert.Equal(t, "stu-1", recs[0].EntityID)
	assert.Equal(t, 70.0, recs[0].Numeric[metric.FieldScore])
	label, ok := recs[0].Label(metric.FieldPerformance)
	assert.True(t, ok)
	assert.Equal(t, "Good", label)
}

func TestMetricStore_QueryMetrics_unresolvedScope(t *testing.T) {
	db, _ := setupMockDB(t)
	store := NewMetricStore(db)

	recs, err := store.QueryMetrics(context.Background(), metric.EntityStudent, scope.Filter{}, metric.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMetricStore_AppendMetrics(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewMetricStore(db)
	at := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO metric_records (entity_id,entity_type,region,school_id,class_label,academic_year,recorded_at,numeric,categorical)")).
		WithArgs("stu-1", "student", "greater-accra", "42", "", "2023/2024", at, []byte(`{"score":70}`), []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.AppendMetrics(context.Background(), metric.Record{
		EntityID:     "stu-1",
		EntityType:   metric.EntityStudent,
		Region:       "greater-accra",
		SchoolID:     "42",
		AcademicYear: "2023/2024",
		RecordedAt:   at,
		Numeric:      map[string]float64{metric.FieldScore: 70},
	})
	require.NoError(t, err)
}

func TestMetricStore_AppendMetrics_invalid(t *testing.T) {
	db, _ := setupMockDB(t)
	store := NewMetricStore(db)

	err := store.AppendMetrics(context.Background(), metric.Record{EntityID: "stu-1", EntityType: "alien"})
	assert.ErrorIs(t, err, metric.ErrInvalidRecord)
}
