package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

// assignment kinds
const (
	AssignSchool = "school"
	AssignClass  = "class"
	AssignChild  = "child"
	AssignEntity = "entity"
)

const orgPathQuery = `
WITH RECURSIVE chain AS (
    SELECT id, parent_id, code, 0 AS depth FROM org_units WHERE id = $1
    UNION ALL
    SELECT o.id, o.parent_id, o.code, c.depth + 1
    FROM org_units o JOIN chain c ON o.id = c.parent_id
    WHERE c.depth < 8
)
SELECT code FROM chain ORDER BY depth DESC`

type Directory struct {
	db *sqlx.DB
}

var _ scope.Directory = (*Directory)(nil)

func NewDirectory(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

// UpsertOrgUnit registers or renames an organization.
func (dir *Directory) UpsertOrgUnit(ctx context.Context, id, parentID, kind, code string) error {
	var parent interface{}
	if parentID != "" {
		parent = parentID
	}
	q := psql.Insert("org_units").
		Columns("id", "parent_id", "kind", "code").
		Values(id, parent, kind, code).
		Suffix("ON CONFLICT (id) DO UPDATE SET parent_id = EXCLUDED.parent_id, kind = EXCLUDED.kind, code = EXCLUDED.code")
	if _, err := execAffected(ctx, dir.db, q); err != nil {
		return errors.Wrapf(err, "saving org unit %s", id)
	}
	return nil
}

func (dir *Directory) Assign(ctx context.Context, userID, kind string, targetIDs ...string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	q := psql.Insert("user_assignments").Columns("user_id", "kind", "target_id")
	for _, t := range targetIDs {
		q = q.Values(userID, kind, t)
	}
	q = q.Suffix("ON CONFLICT DO NOTHING")
	if _, err := execAffected(ctx, dir.db, q); err != nil {
		return errors.Wrapf(err, "assigning %s to %s", kind, userID)
	}
	return nil
}

func (dir *Directory) OrgPath(ctx context.Context, orgID string) (scope.Path, error) {
	var codes []string
	if err := dir.db.SelectContext(ctx, &codes, orgPathQuery, orgID); err != nil {
		return nil, errors.Wrap(err, "querying organization path")
	}
	if len(codes) == 0 {
		return nil, errors.Wrapf(scope.ErrUnknownOrganization, "%q", orgID)
	}
	return scope.Path(codes), nil
}

func (dir *Directory) SubjectPath(ctx context.Context, subjectID string) (scope.Path, error) {
	var loc struct {
		Region     string `db:"region"`
		SchoolID   string `db:"school_id"`
		ClassLabel string `db:"class_label"`
	}
	err := dir.db.GetContext(ctx, &loc, `SELECT region, school_id, class_label FROM metric_records
		WHERE entity_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT 1`, subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(scope.ErrUnknownSubject, "%q", subjectID)
	} else if err != nil {
		return nil, errors.Wrap(err, "querying subject path")
	}

	p := make(scope.Path, 0, 3)
	for _, seg := range []string{loc.Region, loc.SchoolID, loc.ClassLabel} {
		if seg == "" {
			break
		}
		p = append(p, seg)
	}
	return p, nil
}

func (dir *Directory) targets(ctx context.Context, userID, kind string) ([]string, error) {
	ts := make([]string, 0)
	err := dir.db.SelectContext(ctx, &ts,
		"SELECT target_id FROM user_assignments WHERE user_id = $1 AND kind = $2 ORDER BY target_id", userID, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s assignments", kind)
	}
	return ts, nil
}

func (dir *Directory) single(ctx context.Context, userID, kind string) (string, error) {
	ts, err := dir.targets(ctx, userID, kind)
	if err != nil {
		return "", err
	}
	if len(ts) == 0 {
		return "", errors.Wrapf(scope.ErrNotAssigned, "%s %s", kind, userID)
	}
	return ts[0], nil
}

func (dir *Directory) SchoolOf(ctx context.Context, userID string) (string, error) {
	return dir.single(ctx, userID, AssignSchool)
}

func (dir *Directory) EntityOf(ctx context.Context, userID string) (string, error) {
	return dir.single(ctx, userID, AssignEntity)
}

func (dir *Directory) ClassesOf(ctx context.Context, userID string) ([]string, error) {
	return dir.targets(ctx, userID, AssignClass)
}

func (dir *Directory) ChildrenOf(ctx context.Context, userID string) ([]string, error) {
	return dir.targets(ctx, userID, AssignChild)
}
