package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

type (
	// Event is published for every due definition the manager submits.
	Event struct {
		Type         report.Event `json:"type"`
		DefinitionID string       `json:"definition_id"`
		InstanceID   string       `json:"instance_id"`
		ScheduledFor time.Time    `json:"scheduled_for"`
		NextRunAt    time.Time    `json:"next_run_at"`
	}

	Publisher interface {
		Publish(ctx context.Context, ev Event) error
	}

	Observer interface {
		TickFinished(res TickResult, took time.Duration)
	}

	TickResult struct {
		Due       int
		Submitted int
		Skipped   int
		Failed    int
	}

	Deps struct {
		Repo      report.Repository
		Service   *report.Service
		Publisher Publisher // optional
		Observer  Observer  // optional
		Logger    core.Logger
	}

	// Manager submits scheduled definitions when they fall due.
	Manager struct {
		repo      report.Repository
		svc       *report.Service
		publisher Publisher
		observer  Observer
		logger    core.Logger
	}
)

func NewManager(deps Deps) *Manager {
	return &Manager{
		repo:      deps.Repo,
		svc:       deps.Service,
		publisher: deps.Publisher,
		observer:  deps.Observer,
		logger:    deps.Logger,
	}
}

// DueDefinitions returns the enabled, live, scheduled definitions whose next run is at or before now.
func (m *Manager) DueDefinitions(ctx context.Context, now time.Time) ([]report.Definition, error) {
	return m.repo.QueryDefinitions(ctx, report.DefinitionFilter{DueBefore: now})
}

// Tick runs one scheduling pass.
// Each due definition first has its schedule advanced through a compare-and-swap on its previous
// NextRunAt, so that concurrent drivers submit a slot at most once. A definition whose previous
// run is still generating is skipped for this slot.
func (m *Manager) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	start := time.Now()
	var res TickResult

	due, err := m.DueDefinitions(ctx, now)
	if err != nil {
		return res, errors.Wrap(err, "querying due definitions")
	}
	res.Due = len(due)

	for _, d := range due {
		submitted, err := m.run(ctx, d, now)
		switch {
		case err != nil:
			res.Failed++
			m.logger.Error("scheduled report", err, core.Fields{"definition_id": d.ID})
		case submitted:
			res.Submitted++
		default:
			res.Skipped++
		}
	}

	if m.observer != nil {
		m.observer.TickFinished(res, time.Since(start))
	}
	if res.Due > 0 {
		m.logger.Info("scheduler tick", core.Fields{"due": res.Due, "submitted": res.Submitted, "skipped": res.Skipped, "failed": res.Failed})
	}
	return res, nil
}

func (m *Manager) run(ctx context.Context, d report.Definition, now time.Time) (bool, error) {
	slot := d.Schedule.NextRunAt
	advanced, err := d.Schedule.Advance(now)
	if err != nil {
		return false, err
	}
	won, err := m.repo.AdvanceSchedule(ctx, d.ID, slot, advanced.NextRunAt, now)
	if err != nil {
		return false, errors.Wrap(err, "advancing schedule")
	}
	if !won {
		m.logger.Debug("scheduled slot taken by another driver", core.Fields{"definition_id": d.ID, "slot": slot})
		return false, nil
	}

	generating, err := m.repo.QueryInstances(ctx, report.InstanceFilter{
		DefinitionID: d.ID,
		Statuses:     []report.Status{report.StatusGenerating},
		Limit:        1,
	})
	if err != nil {
		return false, errors.Wrap(err, "querying generating instances")
	}
	if len(generating) > 0 {
		m.logger.Warn("scheduled report skipped: previous run still generating", core.Fields{
			"definition_id": d.ID,
			"instance_id":   generating[0].ID,
			"slot":          slot,
		})
		return false, nil
	}

	inst, err := m.svc.SubmitDefinition(ctx, d.ID)
	if err != nil {
		return false, err
	}

	if m.publisher != nil {
		ev := Event{
			Type:         report.EventDue,
			DefinitionID: d.ID,
			InstanceID:   inst.ID,
			ScheduledFor: slot,
			NextRunAt:    advanced.NextRunAt,
		}
		if err := m.publisher.Publish(ctx, ev); err != nil {
			// the instance is queued; a lost event is not worth failing the slot for
			m.logger.Error("publishing due event", err, core.Fields{"definition_id": d.ID})
		}
	}
	return true, nil
}
