package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	testutil "github.com/liamAduDonkor/adesua-sub000/tests"
)

const (
	summaryPath    = "/v1/analytics/summary"
	compliancePath = "/v1/analytics/compliance"
)

func TestAnalyticsAPI_summary(t *testing.T) {
	e := setup(t)
	rec := e.do(http.MethodGet,
		summaryPath+"?entity_type=student&fields=score,attendanceRate&distribute=performanceRating&academic_year=2023/2024",
		e.getToken(t, testutil.HeadOf42))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res analytics.Result
	unmarshall(t, rec, &res)
	assert.Equal(t, 50, res.Summary.Count)
	assert.Equal(t, []string{"score", "attendanceRate"}, res.Query.Fields)

	good, ok := res.Bucket("Good")
	require.True(t, ok)
	assert.Equal(t, 30, good.Count)
	assert.InDelta(t, 60, good.Percent.Value, 1e-9)

	sum := 0
	for _, b := range res.Distribution {
		sum += b.Count
	}
	assert.Equal(t, res.Summary.Count, sum)
}

func TestAnalyticsAPI_summaryScopes(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name      string
		token     string
		query     string
		wantCode  int
		wantCount int
	}{
		{"admin sees every school", e.getToken(t, testutil.Admin), "", http.StatusOK, 60},
		{"admin narrows to a school", e.getToken(t, testutil.Admin), "&school_id=43", http.StatusOK, 10},
		{"head sees own school", e.getToken(t, testutil.HeadOf42), "", http.StatusOK, 50},
		{"head cannot target another school", e.getToken(t, testutil.HeadOf42), "&school_id=43", http.StatusForbidden, 0},
		{"teacher sees own class", e.getToken(t, testutil.TeacherOf1), "", http.StatusOK, 50},
		{"student sees self", e.getToken(t, testutil.Student1), "", http.StatusOK, 1},
		{"student cannot target a school", e.getToken(t, testutil.Student1), "&school_id=42", http.StatusForbidden, 0},
		{"parent sees children", e.getToken(t, testutil.Parent), "", http.StatusOK, 2},
		{"unknown organization", e.getToken(t, testutil.Admin), "&organization_id=nowhere", http.StatusNotFound, 0},
		{"admin narrows to a school of a region", e.getToken(t, testutil.Admin), "&region=greater-accra&school_id=43", http.StatusOK, 10},
		{"admin school outside region", e.getToken(t, testutil.Admin), "&school_id=42&region=volta", http.StatusBadRequest, 0},
		{"head narrows to own class", e.getToken(t, testutil.HeadOf42), "&school_id=42&organization_id=42:JHS1-A", http.StatusOK, 50},
		{"head own school with another school", e.getToken(t, testutil.HeadOf42), "&school_id=42&organization_id=43", http.StatusForbidden, 0},
		{"head own school with another region", e.getToken(t, testutil.HeadOf42), "&school_id=42&region=volta", http.StatusForbidden, 0},
		{"head own student under another school", e.getToken(t, testutil.HeadOf42), "&subject_id=stu-42-0&organization_id=43", http.StatusForbidden, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, summaryPath+"?entity_type=student&fields=score"+tt.query, tt.token)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var res analytics.Result
			unmarshall(t, rec, &res)
			assert.Equal(t, tt.wantCount, res.Summary.Count)
		})
	}
}

func TestAnalyticsAPI_summaryErrors(t *testing.T) {
	e := setup(t)
	token := e.getToken(t, testutil.HeadOf42)

	tests := []httpTest{
		{
			name:     "missing fields",
			path:     summaryPath + "?entity_type=student",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown entity type",
			path:     summaryPath + "?entity_type=parent&fields=score",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad top_n",
			path:     summaryPath + "?entity_type=student&fields=score&top_n=ten",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"top_n": "top_n must be an integer"}),
		},
		{
			name:     "bad date",
			path:     summaryPath + "?entity_type=student&fields=score&date_from=yesterday",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "incompatible group by",
			path:     summaryPath + "?entity_type=vendor&fields=qualityScore&group_by=class",
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, tt.path, token)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestAnalyticsAPI_compliance(t *testing.T) {
	e := setup(t)
	token := e.getToken(t, testutil.HeadOf42)

	rec := e.do(http.MethodGet, compliancePath+"?category=attendance", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var recs []compliance.Record
	unmarshall(t, rec, &recs)
	require.Len(t, recs, 50)
	for _, r := range recs {
		assert.Equal(t, compliance.CategoryAttendance, r.Category)
		assert.True(t, r.Scored)
		assert.InDelta(t, 87, r.Score, 1e-9) // 0.7*90 + 0.3*80
		assert.Equal(t, compliance.StatusWarning, r.Status)
	}

	rec = e.do(http.MethodGet, compliancePath+"?category=hygiene", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodGet, compliancePath+"?category=attendance&school_id=43", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
