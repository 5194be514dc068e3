package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/schedule"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

var (
	definitionColumns = []string{
		"id", "type", "title", "owner_id", "owner_role", "filters", "scope", "group_by", "top_n",
		"output_format", "recipients", "schedule_frequency", "next_run_at", "last_run_at",
		"anchor_day", "anchor_month", "schedule_enabled", "created_at", "updated_at", "deleted_at",
	}
	instanceColumns = []string{
		"id", "definition_id", "status", "attempts", "payload", "failure", "artifact_ref", "artifacts",
		"created_at", "queued_at", "started_at", "completed_at", "updated_at",
	}

	instanceOrderings = map[string]string{
		"created_at":   "created_at",
		"queued_at":    "queued_at",
		"updated_at":   "updated_at",
		"completed_at": "completed_at",
	}
)

type definitionRow struct {
	ID                string         `db:"id"`
	Type              string         `db:"type"`
	Title             string         `db:"title"`
	OwnerID           string         `db:"owner_id"`
	OwnerRole         string         `db:"owner_role"`
	Filters           types.JSONText `db:"filters"`
	Scope             types.JSONText `db:"scope"`
	GroupBy           string         `db:"group_by"`
	TopN              int            `db:"top_n"`
	OutputFormat      string         `db:"output_format"`
	Recipients        types.JSONText `db:"recipients"`
	ScheduleFrequency null.String    `db:"schedule_frequency"`
	NextRunAt         null.Time      `db:"next_run_at"`
	LastRunAt         null.Time      `db:"last_run_at"`
	AnchorDay         int            `db:"anchor_day"`
	AnchorMonth       int            `db:"anchor_month"`
	ScheduleEnabled   bool           `db:"schedule_enabled"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	DeletedAt         null.Time      `db:"deleted_at"`
}

func newDefinitionRow(d report.Definition) (definitionRow, error) {
	row := definitionRow{
		ID:           d.ID,
		Type:         string(d.Type),
		Title:        d.Title,
		OwnerID:      d.Owner.UserID,
		OwnerRole:    string(d.Owner.Role),
		GroupBy:      string(d.GroupBy),
		TopN:         d.TopN,
		OutputFormat: string(d.OutputFormat),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		DeletedAt:    null.TimeFromPtr(d.DeletedAt),
	}

	var err error
	if row.Filters, err = toJSON(d.Filters, "{}"); err != nil {
		return row, errors.Wrap(err, "encoding filters")
	}
	if row.Scope, err = toJSON(d.Scope, "{}"); err != nil {
		return row, errors.Wrap(err, "encoding scope")
	}
	if row.Recipients, err = toJSON(d.Recipients, "[]"); err != nil {
		return row, errors.Wrap(err, "encoding recipients")
	}

	if s := d.Schedule; s != nil {
		row.ScheduleFrequency = null.StringFrom(string(s.Frequency))
		row.NextRunAt = null.TimeFrom(s.NextRunAt.UTC())
		if !s.LastRunAt.IsZero() {
			row.LastRunAt = null.TimeFrom(s.LastRunAt.UTC())
		}
		row.AnchorDay = s.AnchorDay
		row.AnchorMonth = int(s.AnchorMonth)
		row.ScheduleEnabled = s.Enabled
	}
	return row, nil
}

func (row definitionRow) values() []interface{} {
	return []interface{}{
		row.ID, row.Type, row.Title, row.OwnerID, row.OwnerRole, row.Filters, row.Scope, row.GroupBy, row.TopN,
		row.OutputFormat, row.Recipients, row.ScheduleFrequency, row.NextRunAt, row.LastRunAt,
		row.AnchorDay, row.AnchorMonth, row.ScheduleEnabled, row.CreatedAt, row.UpdatedAt, row.DeletedAt,
	}
}

func (row definitionRow) definition() (report.Definition, error) {
	d := report.Definition{
		ID:           row.ID,
		Type:         report.Type(row.Type),
		Title:        row.Title,
		Owner:        scope.Principal{Role: scope.Role(row.OwnerRole), UserID: row.OwnerID},
		GroupBy:      analytics.GroupBy(row.GroupBy),
		TopN:         row.TopN,
		OutputFormat: report.Format(row.OutputFormat),
		Recipients:   []string{},
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		DeletedAt:    row.DeletedAt.Ptr(),
	}
	if err := row.Filters.Unmarshal(&d.Filters); err != nil {
		return d, errors.Wrap(err, "decoding filters")
	}
	if err := row.Scope.Unmarshal(&d.Scope); err != nil {
		return d, errors.Wrap(err, "decoding scope")
	}
	if err := row.Recipients.Unmarshal(&d.Recipients); err != nil {
		return d, errors.Wrap(err, "decoding recipients")
	}
	if row.ScheduleFrequency.Valid {
		d.Schedule = &schedule.Schedule{
			Frequency:   schedule.Frequency(row.ScheduleFrequency.String),
			NextRunAt:   row.NextRunAt.Time,
			AnchorDay:   row.AnchorDay,
			AnchorMonth: time.Month(row.AnchorMonth),
			Enabled:     row.ScheduleEnabled,
		}
		if row.LastRunAt.Valid {
			d.Schedule.LastRunAt = row.LastRunAt.Time
		}
	}
	return d, nil
}

type instanceRow struct {
	ID           string             `db:"id"`
	DefinitionID string             `db:"definition_id"`
	Status       string             `db:"status"`
	Attempts     int                `db:"attempts"`
	Payload      types.NullJSONText `db:"payload"`
	Failure      types.NullJSONText `db:"failure"`
	ArtifactRef  string             `db:"artifact_ref"`
	Artifacts    types.JSONText     `db:"artifacts"`
	CreatedAt    time.Time          `db:"created_at"`
	QueuedAt     null.Time          `db:"queued_at"`
	StartedAt    null.Time          `db:"started_at"`
	CompletedAt  null.Time          `db:"completed_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
}

func newInstanceRow(inst report.Instance) (instanceRow, error) {
	row := instanceRow{
		ID:           inst.ID,
		DefinitionID: inst.DefinitionID,
		Status:       string(inst.Status),
		Attempts:     inst.Attempts,
		ArtifactRef:  inst.ArtifactRef,
		CreatedAt:    inst.CreatedAt.UTC(),
		QueuedAt:     null.TimeFromPtr(inst.QueuedAt),
		StartedAt:    null.TimeFromPtr(inst.StartedAt),
		CompletedAt:  null.TimeFromPtr(inst.CompletedAt),
		UpdatedAt:    inst.UpdatedAt.UTC(),
	}

	var err error
	if row.Payload, err = toNullJSON(inst.Payload, inst.Payload != nil); err != nil {
		return row, errors.Wrap(err, "encoding payload")
	}
	if row.Failure, err = toNullJSON(inst.Failure, inst.Failure != nil); err != nil {
		return row, errors.Wrap(err, "encoding failure")
	}
	if row.Artifacts, err = toJSON(inst.Artifacts, "[]"); err != nil {
		return row, errors.Wrap(err, "encoding artifacts")
	}
	return row, nil
}

func (row instanceRow) values() []interface{} {
	return []interface{}{
		row.ID, row.DefinitionID, row.Status, row.Attempts, row.Payload, row.Failure, row.ArtifactRef, row.Artifacts,
		row.CreatedAt, row.QueuedAt, row.StartedAt, row.CompletedAt, row.UpdatedAt,
	}
}

func (row instanceRow) instance() (report.Instance, error) {
	inst := report.Instance{
		ID:           row.ID,
		DefinitionID: row.DefinitionID,
		Status:       report.Status(row.Status),
		Attempts:     row.Attempts,
		ArtifactRef:  row.ArtifactRef,
		Artifacts:    []report.Artifact{},
		CreatedAt:    row.CreatedAt,
		QueuedAt:     row.QueuedAt.Ptr(),
		StartedAt:    row.StartedAt.Ptr(),
		CompletedAt:  row.CompletedAt.Ptr(),
		UpdatedAt:    row.UpdatedAt,
	}
	if row.Payload.Valid {
		inst.Payload = new(report.Payload)
		if err := row.Payload.Unmarshal(inst.Payload); err != nil {
			return inst, errors.Wrap(err, "decoding payload")
		}
	}
	if row.Failure.Valid {
		inst.Failure = new(report.Failure)
		if err := row.Failure.Unmarshal(inst.Failure); err != nil {
			return inst, errors.Wrap(err, "decoding failure")
		}
	}
	if len(row.Artifacts) > 0 {
		if err := row.Artifacts.Unmarshal(&inst.Artifacts); err != nil {
			return inst, errors.Wrap(err, "decoding artifacts")
		}
	}
	return inst, nil
}

// upsertSuffix updates every column but the id on conflict.
func upsertSuffix(columns []string) string {
	sets := make([]string, 0, len(columns)-1)
	for _, col := range columns[1:] {
		sets = append(sets, col+" = EXCLUDED."+col)
	}
	return "ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
}

type reportRepository struct {
	db *sqlx.DB
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) report.Repository {
	return &reportRepository{db: db}
}

func (repo *reportRepository) SaveDefinition(ctx context.Context, d report.Definition) error {
	row, err := newDefinitionRow(d)
	if err != nil {
		return err
	}
	q := psql.Insert("report_definitions").
		Columns(definitionColumns...).
		Values(row.values()...).
		Suffix(upsertSuffix(definitionColumns))
	if _, err = execAffected(ctx, repo.db, q); err != nil {
		return errors.Wrapf(err, "saving definition %s", d.ID)
	}
	return nil
}

func (repo *reportRepository) GetDefinition(ctx context.Context, id string) (report.Definition, error) {
	query, args, err := psql.Select(definitionColumns...).From("report_definitions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return report.Definition{}, errors.Wrap(err, "building definition query")
	}

	var row definitionRow
	if err = repo.db.GetContext(ctx, &row, query, args...); isMissingRow(err) {
		return report.Definition{}, errors.Wrapf(report.ErrNotFound, "definition %s", id)
	} else if err != nil {
		return report.Definition{}, errors.Wrapf(err, "getting definition %s", id)
	}
	return row.definition()
}

func (repo *reportRepository) QueryDefinitions(ctx context.Context, f report.DefinitionFilter) ([]report.Definition, error) {
	qb := psql.Select(definitionColumns...).From("report_definitions")
	if !f.IncludeDeleted {
		qb = qb.Where(sq.Eq{"deleted_at": nil})
	}
	if f.OwnerID != "" {
		qb = qb.Where(sq.Eq{"owner_id": f.OwnerID})
	}
	if !f.DueBefore.IsZero() {
		qb = qb.Where(sq.Eq{"schedule_enabled": true}).Where(sq.LtOrEq{"next_run_at": f.DueBefore.UTC()})
	}
	qb = qb.OrderBy("created_at ASC", "id ASC")
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building definitions query")
	}

	var rows []definitionRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying definitions")
	}
	defs := make([]report.Definition, 0, len(rows))
	for _, row := range rows {
		d, err := row.definition()
		if err != nil {
			return nil, errors.Wrapf(err, "definition %s", row.ID)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// AdvanceSchedule only moves the schedule if next_run_at still equals prev.
func (repo *reportRepository) AdvanceSchedule(ctx context.Context, id string, prev, next, ranAt time.Time) (bool, error) {
	q := psql.Update("report_definitions").
		Set("next_run_at", next.UTC()).
		Set("last_run_at", ranAt.UTC()).
		Where(sq.Eq{"id": id, "next_run_at": prev.UTC()})
	n, err := execAffected(ctx, repo.db, q)
	if isMissingRow(err) {
		return false, errors.Wrapf(report.ErrNotFound, "definition %s", id)
	} else if err != nil {
		return false, errors.Wrapf(err, "advancing schedule of %s", id)
	}
	if n > 0 {
		return true, nil
	}

	found, err := rowExists(ctx, repo.db, "report_definitions", id)
	if err != nil {
		return false, errors.Wrapf(err, "checking definition %s", id)
	}
	if !found {
		return false, errors.Wrapf(report.ErrNotFound, "definition %s", id)
	}
	return false, nil
}

// DeleteDefinition soft deletes the definition and cancels its pending instances in one transaction.
func (repo *reportRepository) DeleteDefinition(ctx context.Context, id string, at time.Time) (cancelled int, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	at = at.UTC()
	n, err := execAffected(ctx, tx, psql.Update("report_definitions").
		Set("deleted_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}))
	if isMissingRow(err) {
		return 0, errors.Wrapf(report.ErrNotFound, "definition %s", id)
	} else if err != nil {
		return 0, errors.Wrapf(err, "deleting definition %s", id)
	}
	if n == 0 {
		return 0, errors.Wrapf(report.ErrNotFound, "definition %s", id)
	}

	n, err = execAffected(ctx, tx, psql.Update("report_instances").
		Set("status", string(report.StatusCancelled)).
		Set("completed_at", at).
		Set("updated_at", at).
		Where(sq.Eq{
			"definition_id": id,
			"status":        []string{string(report.StatusDraft), string(report.StatusQueued)},
		}))
	if err != nil {
		return 0, errors.Wrapf(err, "cancelling instances of %s", id)
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing transaction")
	}
	return int(n), nil
}

func (repo *reportRepository) SaveInstance(ctx context.Context, inst report.Instance) error {
	row, err := newInstanceRow(inst)
	if err != nil {
		return err
	}
	q := psql.Insert("report_instances").
		Columns(instanceColumns...).
		Values(row.values()...).
		Suffix(upsertSuffix(instanceColumns))
	if _, err = execAffected(ctx, repo.db, q); isForeignKeyViolation(err) {
		return errors.Wrapf(report.ErrNotFound, "definition %s", inst.DefinitionID)
	} else if err != nil {
		return errors.Wrapf(err, "saving instance %s", inst.ID)
	}
	return nil
}

func (repo *reportRepository) GetInstance(ctx context.Context, id string) (report.Instance, error) {
	query, args, err := psql.Select(instanceColumns...).From("report_instances").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return report.Instance{}, errors.Wrap(err, "building instance query")
	}

	var row instanceRow
	if err = repo.db.GetContext(ctx, &row, query, args...); isMissingRow(err) {
		return report.Instance{}, errors.Wrapf(report.ErrNotFound, "instance %s", id)
	} else if err != nil {
		return report.Instance{}, errors.Wrapf(err, "getting instance %s", id)
	}
	return row.instance()
}

// QueryInstances returns the oldest first unless orderings say otherwise.
func (repo *reportRepository) QueryInstances(ctx context.Context, f report.InstanceFilter) ([]report.Instance, error) {
	qb := psql.Select(instanceColumns...).From("report_instances")
	if f.DefinitionID != "" {
		qb = qb.Where(sq.Eq{"definition_id": f.DefinitionID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		qb = qb.Where(sq.Eq{"status": statuses})
	}

	orderings := core.FilterOrderings(f.Orderings, instanceOrderings)
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	tiebreak := core.DBOrdering{Field: "id", Ascending: orderings[0].Ascending}
	for _, ord := range append(orderings, tiebreak) {
		qb = qb.OrderBy(ord.String())
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building instances query")
	}

	var rows []instanceRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying instances")
	}
	insts := make([]report.Instance, 0, len(rows))
	for _, row := range rows {
		inst, err := row.instance()
		if err != nil {
			return nil, errors.Wrapf(err, "instance %s", row.ID)
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

// SwapInstance is a conditional UPDATE on the current status; the row count tells who won.
func (repo *reportRepository) SwapInstance(ctx context.Context, inst report.Instance, expected report.Status) (bool, error) {
	row, err := newInstanceRow(inst)
	if err != nil {
		return false, err
	}
	q := psql.Update("report_instances").
		Set("status", row.Status).
		Set("attempts", row.Attempts).
		Set("payload", row.Payload).
		Set("failure", row.Failure).
		Set("artifact_ref", row.ArtifactRef).
		Set("artifacts", row.Artifacts).
		Set("queued_at", row.QueuedAt).
		Set("started_at", row.StartedAt).
		Set("completed_at", row.CompletedAt).
		Set("updated_at", row.UpdatedAt).
		Where(sq.Eq{"id": inst.ID, "status": string(expected)})
	n, err := execAffected(ctx, repo.db, q)
	if isMissingRow(err) {
		return false, errors.Wrapf(report.ErrNotFound, "instance %s", inst.ID)
	} else if err != nil {
		return false, errors.Wrapf(err, "swapping instance %s", inst.ID)
	}
	if n > 0 {
		return true, nil
	}

	found, err := rowExists(ctx, repo.db, "report_instances", inst.ID)
	if err != nil {
		return false, errors.Wrapf(err, "checking instance %s", inst.ID)
	}
	if !found {
		return false, errors.Wrapf(report.ErrNotFound, "instance %s", inst.ID)
	}
	return false, nil
}
