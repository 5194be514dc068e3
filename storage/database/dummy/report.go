package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

type reportRepository struct {
	db *reportTables
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) report.Repository {
	return &reportRepository{db: db.report}
}

func (repo *reportRepository) SaveDefinition(_ context.Context, d report.Definition) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	c := d.Clone()
	repo.db.definitions[d.ID] = &c
	return nil
}

func (repo *reportRepository) GetDefinition(_ context.Context, id string) (report.Definition, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if d, ok := repo.db.definitions[id]; ok {
		return d.Clone(), nil
	}
	return report.Definition{}, errors.Wrapf(report.ErrNotFound, "definition %s", id)
}

func (repo *reportRepository) QueryDefinitions(_ context.Context, f report.DefinitionFilter) ([]report.Definition, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	defs := make([]report.Definition, 0)
	for _, d := range repo.db.definitions {
		if f.Matches(*d) {
			defs = append(defs, d.Clone())
		}
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].CreatedAt.Equal(defs[j].CreatedAt) {
			return defs[i].ID < defs[j].ID
		}
		return defs[i].CreatedAt.Before(defs[j].CreatedAt)
	})
	if f.Limit > 0 && len(defs) > f.Limit {
		defs = defs[:f.Limit]
	}
	return defs, nil
}

func (repo *reportRepository) AdvanceSchedule(_ context.Context, id string, prev, next, ranAt time.Time) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d, ok := repo.db.definitions[id]
	if !ok {
		return false, errors.Wrapf(report.ErrNotFound, "definition %s", id)
	}
	if d.Schedule == nil || !d.Schedule.NextRunAt.Equal(prev) {
		return false, nil
	}
	d.Schedule.NextRunAt = next
	d.Schedule.LastRunAt = ranAt
	return true, nil
}

func (repo *reportRepository) DeleteDefinition(_ context.Context, id string, at time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d, ok := repo.db.definitions[id]
	if !ok {
		return 0, errors.Wrapf(report.ErrNotFound, "definition %s", id)
	}
	d.DeletedAt = &at
	d.UpdatedAt = at

	var cancelled int
	for _, inst := range repo.db.instances {
		if inst.DefinitionID == id && inst.Status.IsPending() {
			inst.Status = report.StatusCancelled
			inst.CompletedAt = &at
			inst.UpdatedAt = at
			cancelled++
		}
	}
	return cancelled, nil
}

func (repo *reportRepository) SaveInstance(_ context.Context, inst report.Instance) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.definitions[inst.DefinitionID]; !ok {
		return errors.Wrapf(report.ErrNotFound, "definition %s", inst.DefinitionID)
	}
	c := inst.Clone()
	repo.db.instances[inst.ID] = &c
	return nil
}

func (repo *reportRepository) GetInstance(_ context.Context, id string) (report.Instance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if inst, ok := repo.db.instances[id]; ok {
		return inst.Clone(), nil
	}
	return report.Instance{}, errors.Wrapf(report.ErrNotFound, "instance %s", id)
}

func (repo *reportRepository) QueryInstances(_ context.Context, f report.InstanceFilter) ([]report.Instance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	insts := make([]report.Instance, 0)
	for _, inst := range repo.db.instances {
		if f.Matches(*inst) {
			insts = append(insts, inst.Clone())
		}
	}

	newestFirst := len(f.Orderings) > 0 && !f.Orderings[0].Ascending
	sort.Slice(insts, func(i, j int) bool {
		a, b := insts[i], insts[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		if newestFirst {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if f.Limit > 0 && len(insts) > f.Limit {
		insts = insts[:f.Limit]
	}
	return insts, nil
}

// SwapInstance compares and stores under the write lock.
func (repo *reportRepository) SwapInstance(_ context.Context, inst report.Instance, expected report.Status) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cur, ok := repo.db.instances[inst.ID]
	if !ok {
		return false, errors.Wrapf(report.ErrNotFound, "instance %s", inst.ID)
	}
	if cur.Status != expected {
		return false, nil
	}
	c := inst.Clone()
	repo.db.instances[inst.ID] = &c
	return true, nil
}
