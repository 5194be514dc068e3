package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/schedule"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

var testNow = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func definitionRows() *sqlmock.Rows {
	return sqlmock.NewRows(definitionColumns).AddRow(
		"def-1", "student_performance", "Term 1", "head-42", "school",
		[]byte(`{"school_id":"42","academic_year":"2023/2024"}`),
		[]byte(`{"visibility":"SUBTREE","roots":[["greater-accra","42"]]}`),
		"", 5, "pdf", []byte(`["head@school42.edu.gh"]`),
		"monthly", testNow, nil, 31, 1, true, testNow, testNow, nil,
	)
}

func TestReportRepository_GetDefinition(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_definitions WHERE id = $1")).
		WithArgs("def-1").
		WillReturnRows(definitionRows())

	d, err := repo.GetDefinition(context.Background(), "def-1")
	require.NoError(t, err)

	assert.Equal(t, report.TypeStudentPerformance, d.Type)
	assert.Equal(t, scope.Principal{Role: scope.RoleSchool, UserID: "head-42"}, d.Owner)
	assert.Equal(t, "42", d.Filters.SchoolID)
	assert.Equal(t, scope.VisibilitySubtree, d.Scope.Visibility())
	assert.True(t, d.Scope.Contains(scope.Path{"greater-accra", "42", "JHS1-A"}))
	assert.Equal(t, []string{"head@school42.edu.gh"}, d.Recipients)
	require.NotNil(t, d.Schedule)
	assert.Equal(t, schedule.Monthly, d.Schedule.Frequency)
	assert.Equal(t, time.January, d.Schedule.AnchorMonth)
	assert.True(t, d.Schedule.LastRunAt.IsZero())
	assert.False(t, d.IsDeleted())
}

func TestReportRepository_GetDefinition_notFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_definitions WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(definitionColumns))

	_, err := repo.GetDefinition(context.Background(), "nope")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestReportRepository_malformedID(t *testing.T) {
	invalid := &pq.Error{Code: codeInvalidText, Message: `invalid input syntax for type uuid: "not-a-uuid"`}

	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
		call  func(repo *reportRepository) error
	}{
		{
			name: "get definition",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM report_definitions WHERE id = $1")).WillReturnError(invalid)
			},
			call: func(repo *reportRepository) error {
				_, err := repo.GetDefinition(context.Background(), "not-a-uuid")
				return err
			},
		},
		{
			name: "get instance",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM report_instances WHERE id = $1")).WillReturnError(invalid)
			},
			call: func(repo *reportRepository) error {
				_, err := repo.GetInstance(context.Background(), "not-a-uuid")
				return err
			},
		},
		{
			name: "delete definition",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("UPDATE report_definitions")).WillReturnError(invalid)
				mock.ExpectRollback()
			},
			call: func(repo *reportRepository) error {
				_, err := repo.DeleteDefinition(context.Background(), "not-a-uuid", testNow)
				return err
			},
		},
		{
			name: "advance schedule",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE report_definitions")).WillReturnError(invalid)
			},
			call: func(repo *reportRepository) error {
				_, err := repo.AdvanceSchedule(context.Background(), "not-a-uuid", testNow, testNow.AddDate(0, 1, 0), testNow)
				return err
			},
		},
		{
			name: "swap instance",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE report_instances")).WillReturnError(invalid)
			},
			call: func(repo *reportRepository) error {
				_, err := repo.SwapInstance(context.Background(), report.Instance{ID: "not-a-uuid", Status: report.StatusGenerating}, report.StatusQueued)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewReportRepository(db).(*reportRepository)
			tt.setup(mock)

			assert.ErrorIs(t, tt.call(repo), report.ErrNotFound)
		})
	}
}

func TestReportRepository_GetDefinition_otherErrors(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_definitions WHERE id = $1")).
		WillReturnError(&pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"})

	_, err := repo.GetDefinition(context.Background(), "def-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, report.ErrNotFound)
}

func TestReportRepository_SaveDefinition(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_definitions")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s, err := schedule.New(schedule.Weekly, testNow, true)
	require.NoError(t, err)
	err = repo.SaveDefinition(context.Background(), report.Definition{
		ID:           "def-1",
		Type:         report.TypeVendorCompliance,
		Owner:        scope.Principal{Role: scope.RoleAdmin, UserID: "admin-1"},
		Scope:        scope.Full(),
		OutputFormat: report.FormatCSV,
		Schedule:     &s,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	})
	require.NoError(t, err)
}

func TestReportRepository_QueryDefinitions_due(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE deleted_at IS NULL AND schedule_enabled = $1 AND next_run_at <= $2 ORDER BY created_at ASC, id ASC")).
		WithArgs(true, testNow).
		WillReturnRows(definitionRows())

	defs, err := repo.QueryDefinitions(context.Background(), report.DefinitionFilter{DueBefore: testNow})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "def-1", defs[0].ID)
}

func TestReportRepository_AdvanceSchedule(t *testing.T) {
	next := testNow.AddDate(0, 1, 0)
	stmt := regexp.QuoteMeta("UPDATE report_definitions SET next_run_at = $1, last_run_at = $2 WHERE id = $3 AND next_run_at = $4")
	exists := regexp.QuoteMeta("SELECT true FROM report_definitions WHERE id = $1")

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		want    bool
		wantErr error
	}{
		{
			name: "advanced",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(stmt).WithArgs(next, testNow, "def-1", testNow).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			want: true,
		},
		{
			name: "already advanced",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs("def-1").WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))
			},
		},
		{
			name: "unknown",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs("def-1").WillReturnRows(sqlmock.NewRows([]string{"bool"}))
			},
			wantErr: report.ErrNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewReportRepository(db)
			tc.setup(mock)

			ok, err := repo.AdvanceSchedule(context.Background(), "def-1", testNow, next, testNow)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestReportRepository_DeleteDefinition(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_definitions SET deleted_at = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(testNow, testNow, "def-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_instances SET status = $1, completed_at = $2, updated_at = $3 WHERE definition_id = $4 AND status IN ($5,$6)")).
		WithArgs("cancelled", testNow, testNow, "def-1", "draft", "queued").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.DeleteDefinition(context.Background(), "def-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReportRepository_DeleteDefinition_notFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_definitions")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteDefinition(context.Background(), "def-1", testNow)
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestReportRepository_SaveInstance_unknownDefinition(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_instances")).
		WillReturnError(&pq.Error{Code: codeForeignKeyViolation})

	err := repo.SaveInstance(context.Background(), report.Instance{ID: "inst-1", DefinitionID: "nope", Status: report.StatusDraft})
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestReportRepository_QueryInstances(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows(instanceColumns).
		AddRow("inst-2", "def-1", "failed", 2, nil, []byte(`{"reason":"timeout","message":"too slow","retryable":true}`),
			"", []byte(`[]`), testNow.Add(time.Hour), testNow, testNow, testNow, testNow).
		AddRow("inst-1", "def-1", "completed", 1, []byte(`{"analytics":{"summary":{"count":3}}}`), nil,
			"inst-1/a.pdf", []byte(`[{"format":"pdf","ref":"inst-1/a.pdf"}]`), testNow, testNow, testNow, testNow, testNow)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE definition_id = $1 AND status IN ($2,$3) ORDER BY created_at DESC, id DESC LIMIT 5")).
		WithArgs("def-1", "completed", "failed").
		WillReturnRows(rows)

	insts, err := repo.QueryInstances(context.Background(), report.InstanceFilter{
		DefinitionID: "def-1",
		Statuses:     []report.Status{report.StatusCompleted, report.StatusFailed},
		Orderings:    []core.DBOrdering{{Field: "created_at"}, {Field: "bogus; DROP TABLE"}},
		Limit:        5,
	})
	require.NoError(t, err)
	require.Len(t, insts, 2)

	assert.Nil(t, insts[0].Payload)
	require.NotNil(t, insts[0].Failure)
	assert.Equal(t, report.ReasonTimeout, insts[0].Failure.Reason)
	assert.True(t, insts[0].Failure.Retryable)

	require.NotNil(t, insts[1].Payload)
	assert.Equal(t, 3, insts[1].Payload.Analytics.Summary.Count)
	require.Len(t, insts[1].Artifacts, 1)
	assert.Equal(t, report.FormatPDF, insts[1].Artifacts[0].Format)
}

func TestReportRepository_SwapInstance(t *testing.T) {
	stmt := regexp.QuoteMeta("UPDATE report_instances SET status = $1") + ".*" + regexp.QuoteMeta("WHERE id = $11 AND status = $12")
	exists := regexp.QuoteMeta("SELECT true FROM report_instances WHERE id = $1")
	inst := report.Instance{ID: "inst-1", DefinitionID: "def-1", Status: report.StatusGenerating, Attempts: 1, UpdatedAt: testNow}

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		want    bool
		wantErr error
	}{
		{
			name: "won",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			want: true,
		},
		{
			name: "lost",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs("inst-1").WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))
			},
		},
		{
			name: "unknown",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs("inst-1").WillReturnRows(sqlmock.NewRows([]string{"bool"}))
			},
			wantErr: report.ErrNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewReportRepository(db)
			tc.setup(mock)

			ok, err := repo.SwapInstance(context.Background(), inst, report.StatusQueued)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}
