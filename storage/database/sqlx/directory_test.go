package sqlxrepos

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

func TestDirectory_OrgPath(t *testing.T) {
	db, mock := setupMockDB(t)
	dir := NewDirectory(db)

	mock.ExpectQuery("WITH RECURSIVE chain").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("greater-accra").AddRow("42").AddRow("JHS1-A"))
	mock.ExpectQuery("WITH RECURSIVE chain").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"code"}))

	p, err := dir.OrgPath(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, scope.Path{"greater-accra", "42", "JHS1-A"}, p)

	_, err = dir.OrgPath(context.Background(), "nope")
	assert.ErrorIs(t, err, scope.ErrUnknownOrganization)
}

func TestDirectory_SubjectPath(t *testing.T) {
	db, mock := setupMockDB(t)
	dir := NewDirectory(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM metric_records")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"region", "school_id", "class_label"}).AddRow("greater-accra", "42", ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM metric_records")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"region", "school_id", "class_label"}))

	p, err := dir.SubjectPath(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, scope.Path{"greater-accra", "42"}, p)

	_, err = dir.SubjectPath(context.Background(), "ghost")
	assert.ErrorIs(t, err, scope.ErrUnknownSubject)
}

func TestDirectory_assignments(t *testing.T) {
	db, mock := setupMockDB(t)
	dir := NewDirectory(db)
	q := regexp.QuoteMeta("SELECT target_id FROM user_assignments WHERE user_id = $1 AND kind = $2")

	mock.ExpectQuery(q).WithArgs("head-42", AssignSchool).
		WillReturnRows(sqlmock.NewRows([]string{"target_id"}).AddRow("school-42"))
	mock.ExpectQuery(q).WithArgs("teach-1", AssignClass).
		WillReturnRows(sqlmock.NewRows([]string{"target_id"}).AddRow("class-1").AddRow("class-2"))
	mock.ExpectQuery(q).WithArgs("stu-user", AssignEntity).
		WillReturnRows(sqlmock.NewRows([]string{"target_id"}))

	school, err := dir.SchoolOf(context.Background(), "head-42")
	require.NoError(t, err)
	assert.Equal(t, "school-42", school)

	classes, err := dir.ClassesOf(context.Background(), "teach-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"class-1", "class-2"}, classes)

	_, err = dir.EntityOf(context.Background(), "stu-user")
	assert.ErrorIs(t, err, scope.ErrNotAssigned)
}

func TestDirectory_Assign(t *testing.T) {
	db, mock := setupMockDB(t)
	dir := NewDirectory(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_assignments (user_id,kind,target_id) VALUES ($1,$2,$3),($4,$5,$6) ON CONFLICT DO NOTHING")).
		WithArgs("mum", AssignChild, "stu-1", "mum", AssignChild, "stu-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, dir.Assign(context.Background(), "mum", AssignChild, "stu-1", "stu-2"))
}
