package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/schedule"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

const (
	defaultMaxRetries = 3
	notifyTimeout     = 30 * time.Second
	claimBatch        = 10
	swapAttempts      = 3
)

type (
	ScopeResolver interface {
		Resolve(ctx context.Context, p scope.Principal, t scope.Target) (scope.Filter, error)
	}

	ServiceDeps struct {
		Repo       Repository
		Resolver   ScopeResolver
		Renderer   Renderer
		Notifier   Notifier // optional
		Observer   Observer // optional
		Validate   *validator.Validate
		Translator ut.Translator
		Logger     core.Logger
		Conf       *core.Config
		Clock      func() time.Time // optional, defaults to UTC now
	}

	// Service drives report definitions and the lifecycle of their instances.
	// Every status change goes through a compare-and-swap on the stored status.
	Service struct {
		repo       Repository
		resolver   ScopeResolver
		renderer   Renderer
		notifier   Notifier
		observer   Observer
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
		maxRetries int
		now        func() time.Time

		pending sync.WaitGroup // notifications in flight
	}
)

func NewService(deps ServiceDeps) *Service {
	svc := &Service{
		repo:       deps.Repo,
		resolver:   deps.Resolver,
		renderer:   deps.Renderer,
		notifier:   deps.Notifier,
		observer:   deps.Observer,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
		maxRetries: defaultMaxRetries,
		now:        deps.Clock,
	}
	if deps.Conf != nil && deps.Conf.Reports.MaxRetries > 0 {
		svc.maxRetries = deps.Conf.Reports.MaxRetries
	}
	if svc.notifier == nil {
		svc.notifier = nopNotifier{}
	}
	if svc.observer == nil {
		svc.observer = nopObserver{}
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

func (svc *Service) MaxRetries() int { return svc.maxRetries }

// Wait blocks until every pending notification has been delivered (or has failed).
func (svc *Service) Wait() { svc.pending.Wait() }

func (svc *Service) validateStruct(v interface{}) error {
	if err := svc.validate.Struct(v); err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	return nil
}

// resolveScope computes the owner's filter narrowed to the definition filters.
// Targets outside of what the owner may see are reported as validation errors.
func (svc *Service) resolveScope(ctx context.Context, owner scope.Principal, f Filters) (scope.Filter, error) {
	filter, err := svc.resolver.Resolve(ctx, owner, f.Target())
	if err != nil {
		if isScopeErr(err) {
			return scope.Filter{}, core.NewValidationError(err, core.FieldError{Field: "filters", Error: err.Error()})
		}
		return scope.Filter{}, errors.Wrap(err, "resolving scope")
	}
	return filter, nil
}

func isScopeErr(err error) bool {
	return errors.Is(err, scope.ErrScopeDenied) ||
		errors.Is(err, scope.ErrUnknownOrganization) ||
		errors.Is(err, scope.ErrUnknownSubject) ||
		errors.Is(err, scope.ErrConflictingTarget) ||
		errors.Is(err, scope.ErrUnknownRole)
}

// =========================================================================
// Definitions

func (svc *Service) CreateDefinition(ctx context.Context, p scope.Principal, nd NewDefinition) (Definition, error) {
	if err := svc.validateStruct(nd); err != nil {
		return Definition{}, err
	}
	tmpl, _ := nd.Type.Template()
	if !nd.GroupBy.CompatibleWith(tmpl.EntityType) {
		return Definition{}, core.NewValidationError(nil, core.FieldError{
			Field: "group_by",
			Error: fmt.Sprintf("%s reports cannot be grouped by %s", nd.Type, nd.GroupBy),
		})
	}

	filter, err := svc.resolveScope(ctx, p, nd.Filters)
	if err != nil {
		return Definition{}, err
	}

	now := svc.now()
	d := Definition{
		ID:           uuid.NewString(),
		Type:         nd.Type,
		Title:        core.CleanString(nd.Title),
		Owner:        p,
		Filters:      nd.Filters,
		Scope:        filter,
		GroupBy:      nd.GroupBy,
		TopN:         nd.TopN,
		OutputFormat: nd.OutputFormat,
		Recipients:   core.CleanStrings(nd.Recipients),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if d.Title == "" {
		d.Title = strings.ReplaceAll(string(d.Type), "_", " ")
	}
	if nd.Schedule != nil {
		s, err := newSchedule(*nd.Schedule)
		if err != nil {
			return Definition{}, err
		}
		d.Schedule = &s
	}

	if err := svc.repo.SaveDefinition(ctx, d); err != nil {
		return Definition{}, errors.Wrap(err, "saving definition")
	}
	svc.logger.Info("report definition created", core.Fields{"definition_id": d.ID, "type": d.Type, "owner": d.Owner.UserID})
	return d, nil
}

func newSchedule(in ScheduleInput) (schedule.Schedule, error) {
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	s, err := schedule.New(in.Frequency, in.FirstRunAt, enabled)
	if err != nil {
		return schedule.Schedule{}, core.NewValidationError(err, core.FieldError{Field: "frequency", Error: err.Error()})
	}
	return s, nil
}

// liveDefinition returns the definition id unless it is deleted.
func (svc *Service) liveDefinition(ctx context.Context, id string) (Definition, error) {
	d, err := svc.repo.GetDefinition(ctx, id)
	if err != nil {
		return Definition{}, err
	}
	if d.IsDeleted() {
		return Definition{}, errors.Wrapf(ErrNotFound, "definition %s", id)
	}
	return d, nil
}

func (svc *Service) managedDefinition(ctx context.Context, p scope.Principal, id string) (Definition, error) {
	d, err := svc.liveDefinition(ctx, id)
	if err != nil {
		return Definition{}, err
	}
	if !d.CanBeManagedBy(p) {
		return Definition{}, errors.Wrapf(ErrForbidden, "definition %s", id)
	}
	return d, nil
}

func (svc *Service) GetDefinition(ctx context.Context, p scope.Principal, id string) (Definition, error) {
	return svc.managedDefinition(ctx, p, id)
}

// Definitions lists the live definitions p manages; admins see all of them.
func (svc *Service) Definitions(ctx context.Context, p scope.Principal) ([]Definition, error) {
	f := DefinitionFilter{}
	if !p.IsAdmin() {
		f.OwnerID = p.UserID
	}
	defs, err := svc.repo.QueryDefinitions(ctx, f)
	if err != nil {
		return nil, err
	}
	// owner ids are not unique across roles
	managed := defs[:0]
	for _, d := range defs {
		if d.CanBeManagedBy(p) {
			managed = append(managed, d)
		}
	}
	return managed, nil
}

// UpdateDefinition changes the presentation and schedule of a definition. Filters are immutable.
func (svc *Service) UpdateDefinition(ctx context.Context, p scope.Principal, id string, ud UpdateDefinition) (Definition, error) {
	if err := svc.validateStruct(ud); err != nil {
		return Definition{}, err
	}
	d, err := svc.managedDefinition(ctx, p, id)
	if err != nil {
		return Definition{}, err
	}

	if ud.Title != nil {
		d.Title = core.CleanString(*ud.Title)
	}
	if ud.OutputFormat != nil {
		d.OutputFormat = *ud.OutputFormat
	}
	if ud.Recipients != nil {
		d.Recipients = core.CleanStrings(ud.Recipients)
	}
	if ud.TopN != nil {
		d.TopN = *ud.TopN
	}
	switch {
	case ud.Unschedule:
		d.Schedule = nil
	case ud.Schedule != nil:
		s, err := newSchedule(*ud.Schedule)
		if err != nil {
			return Definition{}, err
		}
		d.Schedule = &s
	}
	d.UpdatedAt = svc.now()

	if err := svc.repo.SaveDefinition(ctx, d); err != nil {
		return Definition{}, errors.Wrap(err, "saving definition")
	}
	return d, nil
}

// DeleteDefinition soft deletes a definition and cancels its pending instances.
// Instances already generating run to completion.
func (svc *Service) DeleteDefinition(ctx context.Context, p scope.Principal, id string) error {
	if _, err := svc.managedDefinition(ctx, p, id); err != nil {
		return err
	}
	cancelled, err := svc.repo.DeleteDefinition(ctx, id, svc.now())
	if err != nil {
		return errors.Wrap(err, "deleting definition")
	}
	for i := 0; i < cancelled; i++ {
		svc.observer.InstanceTransitioned(StatusQueued, StatusCancelled)
	}
	svc.logger.Info("report definition deleted", core.Fields{"definition_id": id, "cancelled": cancelled})
	return nil
}

// =========================================================================
// Instances

func (svc *Service) Get(ctx context.Context, id string) (Instance, error) {
	return svc.repo.GetInstance(ctx, id)
}

// Instances lists the instances of a definition, newest first.
func (svc *Service) Instances(ctx context.Context, definitionID string, statuses ...Status) ([]Instance, error) {
	return svc.repo.QueryInstances(ctx, InstanceFilter{
		DefinitionID: definitionID,
		Statuses:     statuses,
		Orderings:    []core.DBOrdering{{Field: "created_at", Ascending: false}},
	})
}

// AuthorizeInstance returns the instance id and its definition if p manages that definition.
func (svc *Service) AuthorizeInstance(ctx context.Context, p scope.Principal, id string) (Instance, Definition, error) {
	inst, err := svc.repo.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, Definition{}, err
	}
	d, err := svc.repo.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return Instance{}, Definition{}, err
	}
	if !d.CanBeManagedBy(p) {
		return Instance{}, Definition{}, errors.Wrapf(ErrForbidden, "instance %s", id)
	}
	return inst, d, nil
}

// Create adds a draft instance to a live definition.
func (svc *Service) Create(ctx context.Context, definitionID string) (Instance, error) {
	d, err := svc.liveDefinition(ctx, definitionID)
	if err != nil {
		return Instance{}, err
	}
	return svc.create(ctx, d)
}

func (svc *Service) create(ctx context.Context, d Definition) (Instance, error) {
	now := svc.now()
	inst := Instance{
		ID:           uuid.NewString(),
		DefinitionID: d.ID,
		Status:       StatusDraft,
		Artifacts:    []Artifact{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := svc.repo.SaveInstance(ctx, inst); err != nil {
		return Instance{}, errors.Wrap(err, "saving instance")
	}
	return inst, nil
}

// Submit queues a draft instance after checking that its filters are still within the owner's scope.
func (svc *Service) Submit(ctx context.Context, instanceID string) (Instance, error) {
	inst, err := svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	if inst.Status != StatusDraft {
		return Instance{}, invalidTransition(inst.Status, StatusQueued)
	}
	d, err := svc.liveDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return Instance{}, err
	}
	if _, err := svc.resolveScope(ctx, d.Owner, d.Filters); err != nil {
		return Instance{}, err
	}
	return svc.queue(ctx, inst)
}

// SubmitDefinition creates and queues an instance of a definition.
// Nothing is created when the definition's filters fail validation.
func (svc *Service) SubmitDefinition(ctx context.Context, definitionID string) (Instance, error) {
	d, err := svc.liveDefinition(ctx, definitionID)
	if err != nil {
		return Instance{}, err
	}
	if _, err := svc.resolveScope(ctx, d.Owner, d.Filters); err != nil {
		return Instance{}, err
	}
	inst, err := svc.create(ctx, d)
	if err != nil {
		return Instance{}, err
	}
	return svc.queue(ctx, inst)
}

func (svc *Service) queue(ctx context.Context, inst Instance) (Instance, error) {
	now := svc.now()
	return svc.transition(ctx, inst, StatusQueued, func(next *Instance) {
		next.QueuedAt = &now
	})
}

// Claim moves a queued instance to generating. Exactly one of several concurrent claims succeeds;
// the others get ErrAlreadyClaimed.
func (svc *Service) Claim(ctx context.Context, instanceID string) (Instance, error) {
	inst, err := svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	return svc.claim(ctx, inst)
}

func (svc *Service) claim(ctx context.Context, inst Instance) (Instance, error) {
	switch inst.Status {
	case StatusGenerating, StatusCompleted, StatusFailed:
		// a rival claim got there first, and may even have finished
		return Instance{}, errors.Wrapf(ErrAlreadyClaimed, "instance %s is %s", inst.ID, inst.Status)
	}
	now := svc.now()
	return svc.transition(ctx, inst, StatusGenerating, func(next *Instance) {
		next.Attempts++
		next.StartedAt = &now
		next.Failure = nil
	})
}

// ClaimNext claims the oldest queued instance. It reports false when the queue is empty.
func (svc *Service) ClaimNext(ctx context.Context) (Instance, bool, error) {
	queued, err := svc.repo.QueryInstances(ctx, InstanceFilter{Statuses: []Status{StatusQueued}, Limit: claimBatch})
	if err != nil {
		return Instance{}, false, errors.Wrap(err, "querying queued instances")
	}
	for _, inst := range queued {
		claimed, err := svc.claim(ctx, inst)
		switch {
		case err == nil:
			return claimed, true, nil
		case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrInvalidTransition):
			continue // another worker won, or it was cancelled meanwhile
		default:
			return Instance{}, false, err
		}
	}
	return Instance{}, false, nil
}

// Complete stores the payload of a generating instance and notifies the recipients.
// Notification failures are logged and never undo the completion.
func (svc *Service) Complete(ctx context.Context, instanceID string, payload Payload, artifactRef string) (Instance, error) {
	inst, err := svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	d, err := svc.repo.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return Instance{}, err
	}

	now := svc.now()
	done, err := svc.transition(ctx, inst, StatusCompleted, func(next *Instance) {
		next.Payload = &payload
		next.ArtifactRef = artifactRef
		next.Artifacts = append(next.Artifacts, Artifact{Format: d.OutputFormat, Ref: artifactRef, RenderedAt: now})
		next.CompletedAt = &now
	})
	if err != nil {
		return Instance{}, err
	}
	svc.notify(EventCompleted, d, done)
	return done, nil
}

// Fail records why generation of an instance failed.
func (svc *Service) Fail(ctx context.Context, instanceID string, reason FailureReason, message string) (Instance, error) {
	inst, err := svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	d, err := svc.repo.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return Instance{}, err
	}

	now := svc.now()
	failed, err := svc.transition(ctx, inst, StatusFailed, func(next *Instance) {
		next.Failure = &Failure{
			Reason:    reason,
			Message:   message,
			Retryable: reason != ReasonInvalidQuery && next.Attempts <= svc.maxRetries,
		}
		next.CompletedAt = &now
	})
	if err != nil {
		return Instance{}, err
	}
	svc.logger.Warn("report generation failed", core.Fields{"instance_id": instanceID, "reason": reason, "attempts": failed.Attempts})
	svc.notify(EventFailed, d, failed)
	return failed, nil
}

// Retry queues a failed instance again, keeping its id.
func (svc *Service) Retry(ctx context.Context, instanceID string) (Instance, error) {
	inst, err := svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	if inst.Status != StatusFailed {
		return Instance{}, invalidTransition(inst.Status, StatusQueued)
	}
	if inst.Attempts > svc.maxRetries {
		return Instance{}, errors.Wrapf(ErrRetryExhausted, "instance %s after %d attempts", inst.ID, inst.Attempts)
	}
	if inst.Failure != nil && !inst.Failure.Retryable {
		return Instance{}, errors.Wrapf(ErrInvalidTransition, "%s failures are not retryable", inst.Failure.Reason)
	}
	if _, err := svc.liveDefinition(ctx, inst.DefinitionID); err != nil {
		return Instance{}, err
	}

	now := svc.now()
	return svc.transition(ctx, inst, StatusQueued, func(next *Instance) {
		next.QueuedAt = &now
		next.StartedAt = nil
		next.CompletedAt = nil
	})
}

// Cancel stops a draft or queued instance. Generating instances cannot be cancelled.
func (svc *Service) Cancel(ctx context.Context, instanceID string) (Instance, error) {
	inst, err := svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	now := svc.now()
	return svc.transition(ctx, inst, StatusCancelled, func(next *Instance) {
		next.CompletedAt = &now
	})
}

// Rerender renders the payload of a completed instance into another artifact.
// The status does not change; the artifact is appended to the history and becomes the ArtifactRef.
func (svc *Service) Rerender(ctx context.Context, instanceID string, format Format) (Instance, error) {
	if !format.IsValid() {
		return Instance{}, core.NewValidationError(nil, core.FieldError{Field: "format", Error: outputFormatText})
	}
	inst, err := svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	if inst.Status != StatusCompleted || inst.Payload == nil {
		return Instance{}, errors.Wrapf(ErrInvalidTransition, "%s instance cannot be rendered", inst.Status)
	}
	d, err := svc.repo.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return Instance{}, err
	}

	ref, err := svc.renderer.Render(ctx, RenderRequest{
		InstanceID:   inst.ID,
		DefinitionID: d.ID,
		Type:         d.Type,
		Title:        d.Title,
		Format:       format,
		Payload:      *inst.Payload,
	})
	if err != nil {
		return Instance{}, err
	}
	artifact := Artifact{Format: format, Ref: ref, RenderedAt: svc.now()}

	for i := 0; i < swapAttempts; i++ {
		next := inst.Clone()
		next.Artifacts = append(next.Artifacts, artifact)
		next.ArtifactRef = artifact.Ref
		next.UpdatedAt = artifact.RenderedAt
		ok, err := svc.repo.SwapInstance(ctx, next, StatusCompleted)
		if err != nil {
			return Instance{}, errors.Wrap(err, "swapping instance")
		}
		if ok {
			return next, nil
		}
		// concurrent re-render: reload and append again
		if inst, err = svc.repo.GetInstance(ctx, instanceID); err != nil {
			return Instance{}, err
		}
	}
	return Instance{}, errors.Errorf("instance %s kept changing while recording its artifact", instanceID)
}

// transition swaps inst to status to, applying mutate to the copy being stored.
func (svc *Service) transition(ctx context.Context, inst Instance, to Status, mutate func(*Instance)) (Instance, error) {
	from := inst.Status
	if !from.CanTransitionTo(to) {
		return Instance{}, invalidTransition(from, to)
	}

	next := inst.Clone()
	next.Status = to
	next.UpdatedAt = svc.now()
	if mutate != nil {
		mutate(&next)
	}

	ok, err := svc.repo.SwapInstance(ctx, next, from)
	if err != nil {
		return Instance{}, errors.Wrap(err, "swapping instance")
	}
	if !ok {
		return Instance{}, svc.lostSwap(ctx, inst.ID, from, to)
	}

	svc.observer.InstanceTransitioned(from, to)
	svc.logger.Debug("report instance transitioned", core.Fields{"instance_id": inst.ID, "from": from, "to": to})
	return next, nil
}

// lostSwap explains why a swap expecting from did not happen.
func (svc *Service) lostSwap(ctx context.Context, id string, from, to Status) error {
	if to == StatusGenerating {
		return errors.Wrapf(ErrAlreadyClaimed, "instance %s", id)
	}
	current, err := svc.repo.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	svc.logger.Warn("report instance changed concurrently", core.Fields{"instance_id": id, "expected": from, "actual": current.Status})
	return invalidTransition(current.Status, to)
}

func (svc *Service) notify(ev Event, d Definition, inst Instance) {
	n := Notification{Event: ev, Recipients: d.Recipients, Definition: d, Instance: inst}

	svc.pending.Add(1)
	go func() {
		defer svc.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				svc.logger.Error(fmt.Sprintf("notifier panicked: %v", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := svc.notifier.Notify(ctx, n); err != nil {
			svc.logger.Error("notifying report recipients", err, core.Fields{"instance_id": inst.ID, "event": ev})
		}
	}()
}
