package dummydb

import (
	"context"

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

// org unit kinds
const (
	KindRegion = "region"
	KindSchool = "school"
	KindClass  = "class"
)

type Directory struct {
	db      *orgTable
	metrics *MetricStore
}

var _ scope.Directory = (*Directory)(nil)

func NewDirectory(db *DB) *Directory {
	return &Directory{db: db.org, metrics: NewMetricStore(db)}
}

// AddOrgUnit registers an organization. code is the path segment metric records use
// (region id, school id or class label).
func (dir *Directory) AddOrgUnit(id, parentID, kind, code string) {
	dir.db.Lock()
	defer dir.db.Unlock()
	dir.db.units[id] = orgUnit{id: id, parentID: parentID, kind: kind, code: code}
}

func (dir *Directory) Assign(userID, kind string, targetIDs ...string) {
	dir.db.Lock()
	defer dir.db.Unlock()

	byKind, ok := dir.db.assignments[userID]
	if !ok {
		byKind = make(map[string][]string)
		dir.db.assignments[userID] = byKind
	}
	byKind[kind] = append(byKind[kind], targetIDs...)
}

func (dir *Directory) OrgPath(_ context.Context, orgID string) (scope.Path, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()

	var rev []string
	for id, seen := orgID, 0; id != ""; seen++ {
		u, ok := dir.db.units[id]
		if !ok || seen > len(dir.db.units) {
			return nil, errors.Wrapf(scope.ErrUnknownOrganization, "%q", orgID)
		}
		rev = append(rev, u.code)
		id = u.parentID
	}

	p := make(scope.Path, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		p = append(p, rev[i])
	}
	return p, nil
}

func (dir *Directory) SubjectPath(_ context.Context, subjectID string) (scope.Path, error) {
	p, ok := dir.metrics.latestPath(subjectID)
	if !ok {
		return nil, errors.Wrapf(scope.ErrUnknownSubject, "%q", subjectID)
	}
	return p, nil
}

func (dir *Directory) targets(userID, kind string) []string {
	dir.db.RLock()
	defer dir.db.RUnlock()
	return append([]string(nil), dir.db.assignments[userID][kind]...)
}

func (dir *Directory) single(userID, kind string) (string, error) {
	ts := dir.targets(userID, kind)
	if len(ts) == 0 {
		return "", errors.Wrapf(scope.ErrNotAssigned, "%s %s", kind, userID)
	}
	return ts[0], nil
}

func (dir *Directory) SchoolOf(_ context.Context, userID string) (string, error) {
	return dir.single(userID, AssignSchool)
}

func (dir *Directory) EntityOf(_ context.Context, userID string) (string, error) {
	return dir.single(userID, AssignEntity)
}

func (dir *Directory) ClassesOf(_ context.Context, userID string) ([]string, error) {
	return dir.targets(userID, AssignClass), nil
}

func (dir *Directory) ChildrenOf(_ context.Context, userID string) ([]string, error) {
	return dir.targets(userID, AssignChild), nil
}
