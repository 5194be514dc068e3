package report

import (
	"context"
	"time"
)

type (
	RenderRequest struct {
		InstanceID   string
		DefinitionID string
		Type         Type
		Title        string
		Format       Format
		Payload      Payload
	}

	// Renderer turns a payload into an artifact and returns its reference.
	// Failures wrap ErrRender.
	Renderer interface {
		Render(ctx context.Context, req RenderRequest) (string, error)
	}

	Event string

	Notification struct {
		Event      Event
		Recipients []string
		Definition Definition
		Instance   Instance
	}

	Notifier interface {
		Notify(ctx context.Context, n Notification) error
	}

	// Observer is told about lifecycle changes, e.g. to export metrics.
	Observer interface {
		InstanceTransitioned(from, to Status)
		GenerationFinished(t Type, status Status, reason FailureReason, took time.Duration)
	}
)

const (
	EventDue       Event = "report.due"
	EventCompleted Event = "report.completed"
	EventFailed    Event = "report.failed"
)

type nopObserver struct{}

func (nopObserver) InstanceTransitioned(Status, Status) {}
func (nopObserver) GenerationFinished(Type, Status, FailureReason, time.Duration) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

// Notifiers fans a notification out to every notifier, returning the first error.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, nt := range ns {
		if err := nt.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
