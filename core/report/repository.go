package report

import (
	"context"
	"time"
)

// Repository persists definitions and instances.
// Implementations return ErrNotFound (wrapped or not) for unknown ids.
type Repository interface {
	SaveDefinition(ctx context.Context, d Definition) error
	GetDefinition(ctx context.Context, id string) (Definition, error)
	QueryDefinitions(ctx context.Context, f DefinitionFilter) ([]Definition, error)

	// AdvanceSchedule moves the schedule of id from prev to next only if its NextRunAt still equals prev.
	// It reports whether the update happened.
	AdvanceSchedule(ctx context.Context, id string, prev, next, ranAt time.Time) (bool, error)

	// DeleteDefinition soft deletes id and cancels its draft and queued instances atomically.
	// It returns the number of cancelled instances.
	DeleteDefinition(ctx context.Context, id string, at time.Time) (int, error)

	SaveInstance(ctx context.Context, inst Instance) error
	GetInstance(ctx context.Context, id string) (Instance, error)
	// QueryInstances lists instances oldest first unless orderings are given.
	QueryInstances(ctx context.Context, f InstanceFilter) ([]Instance, error)

	// SwapInstance stores inst only if the stored status is still expected.
	// It reports whether the swap happened.
	SwapInstance(ctx context.Context, inst Instance, expected Status) (bool, error)
}
