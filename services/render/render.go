package rendersvc

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

var ErrUnknownArtifact = errors.New("unknown artifact")

// FileRenderer writes artifacts under a base directory, one subdirectory per instance.
// References are slash separated paths relative to that directory.
type FileRenderer struct {
	dir    string
	logger core.Logger
	now    func() time.Time
}

var _ report.Renderer = (*FileRenderer)(nil)

func NewFileRenderer(conf *core.Config, logger core.Logger) *FileRenderer {
	dir := conf.Reports.ArtifactDir
	if !filepath.IsAbs(dir) && conf.WorkDir != "" {
		dir = filepath.Join(conf.WorkDir, dir)
	}
	return &FileRenderer{dir: dir, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (r *FileRenderer) Render(ctx context.Context, req report.RenderRequest) (string, error) {
	var (
		content []byte
		err     error
	)
	switch req.Format {
	case report.FormatJSON:
		content, err = encodeJSON(req)
	case report.FormatCSV:
		content, err = encodeCSV(req)
	case report.FormatXLSX:
		content, err = encodeXLSX(req)
	case report.FormatPDF:
		content, err = encodePDF(req)
	default:
		err = errors.Errorf("unsupported format %q", req.Format)
	}
	if err != nil {
		return "", errors.Wrapf(report.ErrRender, "%s: %v", req.Format, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := path.Join(req.InstanceID, fmt.Sprintf("%s-%d.%s", req.Type, r.now().UnixNano(), req.Format))
	fp := filepath.Join(r.dir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrapf(report.ErrRender, "creating artifact dir: %v", err)
	}
	if err := os.WriteFile(fp, content, 0o644); err != nil {
		return "", errors.Wrapf(report.ErrRender, "writing artifact: %v", err)
	}

	r.logger.Debug("artifact rendered", core.Fields{"instance_id": req.InstanceID, "ref": ref, "size_bytes": len(content)})
	return ref, nil
}

// Open returns the content of an artifact previously rendered.
func (r *FileRenderer) Open(ref string) (io.ReadCloser, error) {
	clean := path.Clean("/" + ref)[1:]
	if clean == "" || clean != ref || strings.HasPrefix(clean, "..") {
		return nil, errors.Wrapf(ErrUnknownArtifact, "%q", ref)
	}
	f, err := os.Open(filepath.Join(r.dir, filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrUnknownArtifact, "%q", ref)
		}
		return nil, err
	}
	return f, nil
}

// ContentType is the MIME type of an artifact format.
func ContentType(f report.Format) string {
	switch f {
	case report.FormatPDF:
		return "application/pdf"
	case report.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case report.FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

type jsonDocument struct {
	InstanceID   string         `json:"instance_id"`
	DefinitionID string         `json:"definition_id"`
	Type         report.Type    `json:"type"`
	Title        string         `json:"title"`
	Payload      report.Payload `json:"payload"`
}

func encodeJSON(req report.RenderRequest) ([]byte, error) {
	return json.MarshalIndent(jsonDocument{
		InstanceID:   req.InstanceID,
		DefinitionID: req.DefinitionID,
		Type:         req.Type,
		Title:        req.Title,
		Payload:      req.Payload,
	}, "", "  ")
}

// encodeCSV writes every section one after the other, separated by an empty line.
func encodeCSV(req report.RenderRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{req.Title})
	for _, s := range sections(req.Payload) {
		_ = w.Write(nil)
		_ = w.Write([]string{s.name})
		_ = w.Write(s.header)
		if err := w.WriteAll(s.rows); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// encodeXLSX writes one sheet per section.
func encodeXLSX(req report.RenderRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sections(req.Payload) {
		index, err := f.NewSheet(s.name)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		if err := setRow(f, s.name, 1, s.header); err != nil {
			return nil, err
		}
		for r, row := range s.rows {
			if err := setRow(f, s.name, r+2, row); err != nil {
				return nil, err
			}
		}
	}
	f.DeleteSheet("Sheet1")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// encodePDF lays every section out as a bordered table on A4 portrait.
func encodePDF(req report.RenderRequest) ([]byte, error) {
	const (
		pageWidth = 190.0 // A4 minus default margins
		rowHeight = 7.0
	)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, req.Title)
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(40, 6, fmt.Sprintf("%s | instance %s", req.Type, req.InstanceID))
	pdf.Ln(10)

	for _, s := range sections(req.Payload) {
		width := pageWidth / float64(len(s.header))

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 8, s.name)
		pdf.Ln(9)

		pdf.SetFont("Arial", "B", 9)
		for _, h := range s.header {
			pdf.CellFormat(width, rowHeight, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range s.rows {
			for _, v := range row {
				pdf.CellFormat(width, rowHeight, v, "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
