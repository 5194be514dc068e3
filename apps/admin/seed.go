package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
)

const (
	numericPrefix     = "numeric."
	categoricalPrefix = "categorical."
	seedBatch         = 500
)

func (cli *commandLine) seed(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := parseRecords(f)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	for start := 0; start < len(recs); start += seedBatch {
		end := start + seedBatch
		if end > len(recs) {
			end = len(recs)
		}
		if err = cli.metrics.AppendMetrics(ctx, recs[start:end]...); err != nil {
			return errors.Wrapf(err, "appending records %d to %d", start+1, end)
		}
	}
	fmt.Fprintf(cli.out, "%d record(s) appended\n", len(recs))
	return nil
}

// parseRecords reads metric records from a CSV with a header row.
// Besides the record columns, "numeric.NAME" and "categorical.NAME" columns hold the fields; empty cells are skipped.
func parseRecords(r io.Reader) ([]metric.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	for i := range header {
		header[i] = core.CleanString(header[i])
	}
	if err = checkHeader(header); err != nil {
		return nil, err
	}

	var recs []metric.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(header, row)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		recs = append(recs, rec)
	}
}

func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, col := range header {
		switch {
		case col == "entity_id", col == "entity_type", col == "region", col == "school_id",
			col == "class_label", col == "academic_year", col == "recorded_at":
		case strings.HasPrefix(col, numericPrefix) && len(col) > len(numericPrefix):
		case strings.HasPrefix(col, categoricalPrefix) && len(col) > len(categoricalPrefix):
		default:
			return fmt.Errorf("unknown column %q", col)
		}
		if seen[col] {
			return fmt.Errorf("duplicate column %q", col)
		}
		seen[col] = true
	}
	for _, required := range []string{"entity_id", "entity_type", "recorded_at"} {
		if !seen[required] {
			return fmt.Errorf("missing column %q", required)
		}
	}
	return nil
}

func parseRow(header, row []string) (metric.Record, error) {
	rec := metric.Record{Numeric: map[string]float64{}, Categorical: map[string]string{}}
	for i, col := range header {
		v := core.CleanString(row[i])
		switch {
		case col == "entity_id":
			rec.EntityID = v
		case col == "entity_type":
			rec.EntityType = metric.EntityType(strings.ToLower(v))
		case col == "region":
			rec.Region = v
		case col == "school_id":
			rec.SchoolID = v
		case col == "class_label":
			rec.ClassLabel = v
		case col == "academic_year":
			rec.AcademicYear = v
		case col == "recorded_at":
			t, err := parseTime(v)
			if err != nil {
				return rec, err
			}
			rec.RecordedAt = t
		case v == "":
		case strings.HasPrefix(col, numericPrefix):
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return rec, fmt.Errorf("%s must be a number (got '%s')", col, v)
			}
			rec.Numeric[strings.TrimPrefix(col, numericPrefix)] = n
		default:
			rec.Categorical[strings.TrimPrefix(col, categoricalPrefix)] = v
		}
	}
	return rec, rec.Validate()
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("recorded_at must be a date (got '%s')", v)
}

func splitList(s string) []string {
	return core.CleanStrings(strings.Split(s, ","))
}
