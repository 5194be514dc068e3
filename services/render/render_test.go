package rendersvc

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	logsvc "github.com/liamAduDonkor/adesua-sub000/services/logger"
)

func newRenderer(t *testing.T) *FileRenderer {
	conf := &core.Config{Reports: core.ReportsConfig{ArtifactDir: t.TempDir()}}
	r := NewFileRenderer(conf, logsvc.NewNopLogger())
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	return r
}

func samplePayload() report.Payload {
	return report.Payload{
		Analytics: analytics.Result{
			Summary: analytics.Summary{
				Count:  3,
				Fields: map[string]analytics.FieldStats{"score": {Count: 3, Mean: 80, Min: 70, Max: 90, StdDev: 8.16}},
			},
			Distribution: []analytics.Bucket{
				{Label: "Good", Count: 2, Percent: analytics.Percent{Value: 66.67, Applicable: true}},
				{Label: "Poor", Count: 1, Percent: analytics.Percent{Value: 33.33, Applicable: true}},
			},
			Rankings: []analytics.Rank{
				{Position: 1, GroupKey: "42", Mean: 85, Count: 2, Share: analytics.Percent{Value: 66.67, Applicable: true}},
			},
		},
		Compliance: []compliance.Record{
			{SubjectID: "stu-1", Category: compliance.CategoryAcademic, Score: 91.5, Scored: true, Status: compliance.StatusCompliant, Tier: compliance.TierExcellent},
			{SubjectID: "stu-2", Category: compliance.CategoryAcademic, Status: compliance.StatusUnscored},
		},
	}
}

func request(format report.Format) report.RenderRequest {
	return report.RenderRequest{
		InstanceID:   "inst-1",
		DefinitionID: "def-1",
		Type:         report.TypeStudentPerformance,
		Title:        "Term 2",
		Format:       format,
		Payload:      samplePayload(),
	}
}

func readArtifact(t *testing.T, r *FileRenderer, ref string) []byte {
	t.Helper()
	rc, err := r.Open(ref)
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	return content
}

func TestFileRenderer_Render(t *testing.T) {
	r := newRenderer(t)

	tests := []struct {
		format report.Format
		check  func(t *testing.T, content []byte)
	}{
		{
			format: report.FormatJSON,
			check: func(t *testing.T, content []byte) {
				var doc jsonDocument
				require.NoError(t, json.Unmarshal(content, &doc))
				assert.Equal(t, "Term 2", doc.Title)
				assert.Equal(t, 3, doc.Payload.Analytics.Summary.Count)
			},
		},
		{
			format: report.FormatCSV,
			check: func(t *testing.T, content []byte) {
				rd := csv.NewReader(strings.NewReader(string(content)))
				rd.FieldsPerRecord = -1
				rows, err := rd.ReadAll()
				require.NoError(t, err)
				assert.Equal(t, []string{"Term 2"}, rows[0])
				assert.Contains(t, rows, []string{"Good", "2", "66.67"})
				assert.Contains(t, rows, []string{"stu-2", "academic", "n/a", "unscored", ""})
			},
		},
		{
			format: report.FormatXLSX,
			check: func(t *testing.T, content []byte) {
				f, err := excelize.OpenReader(strings.NewReader(string(content)))
				require.NoError(t, err)
				defer f.Close()
				assert.Equal(t, []string{"Summary", "Distribution", "Rankings", "Compliance"}, f.GetSheetList())
				v, err := f.GetCellValue("Distribution", "A2")
				require.NoError(t, err)
				assert.Equal(t, "Good", v)
			},
		},
		{
			format: report.FormatPDF,
			check: func(t *testing.T, content []byte) {
				assert.True(t, strings.HasPrefix(string(content), "%PDF"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			ref, err := r.Render(context.Background(), request(tt.format))
			require.NoError(t, err)
			assert.Equal(t, "inst-1/student_performance-1700000000000000000."+string(tt.format), ref)
			tt.check(t, readArtifact(t, r, ref))
		})
	}
}

func TestFileRenderer_Render_unknownFormat(t *testing.T) {
	r := newRenderer(t)
	_, err := r.Render(context.Background(), request("docx"))
	assert.True(t, errors.Is(err, report.ErrRender))
}

func TestFileRenderer_Open(t *testing.T) {
	r := newRenderer(t)
	for _, ref := range []string{"", "../etc/passwd", "inst-1/../../secret", "/abs", filepath.Join("inst-1", "missing.pdf")} {
		t.Run(ref, func(t *testing.T) {
			_, err := r.Open(ref)
			assert.True(t, errors.Is(err, ErrUnknownArtifact), "%q: %v", ref, err)
		})
	}
}

func TestSections_emptyPayload(t *testing.T) {
	secs := sections(report.Payload{})
	require.Len(t, secs, 1)
	assert.Equal(t, "Summary", secs[0].name)
	assert.Equal(t, [][]string{{"records", "0", "", "", "", ""}}, secs[0].rows)
}
