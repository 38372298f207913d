package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tnqbao/gau-site-director/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tnqbao/gau-site-director/pipeline"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	actionCounter, _ = meter.Int64Counter("director.pipeline.actions",
		metric.WithDescription("Actions finished by the operation pipeline, by slug and result"))
	actionDuration, _ = meter.Float64Histogram("director.pipeline.action.duration",
		metric.WithDescription("Wall time spent in one action"),
		metric.WithUnit("s"))
)

type State int

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ActionSpec is the static description of an action.
type ActionSpec struct {
	Slug              string
	Name              string
	EquivalentCommand string
	// UserRecoverable lets the site's own users clear a failure of this action.
	UserRecoverable bool
}

type Callback func(ctx context.Context, site *entity.Site, scope Scope) Sequence

type Step struct {
	Spec     ActionSpec
	Callback Callback
}

// Store persists operation and action progress.
type Store interface {
	CreateAction(ctx context.Context, action *entity.Action) error
	SaveAction(ctx context.Context, action *entity.Action) error
	MarkOperationStarted(ctx context.Context, op *entity.Operation) error
}

type ActionObserver func(ctx context.Context, action *entity.Action)

type Option func(*Pipeline)

func WithActionObserver(fn ActionObserver) Option {
	return func(p *Pipeline) { p.observer = fn }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

type registeredStep struct {
	action   *entity.Action
	callback Callback
}

// Pipeline executes the actions of one operation strictly in registration
// order and stops at the first failure. It never retries.
type Pipeline struct {
	op       *entity.Operation
	store    Store
	steps    []registeredStep
	state    State
	observer ActionObserver
	now      func() time.Time
}

func New(op *entity.Operation, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		op:    op,
		store: store,
		state: StatePending,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) State() State { return p.state }

// Actions returns a snapshot of the registered action rows in order.
func (p *Pipeline) Actions() []entity.Action {
	out := make([]entity.Action, len(p.steps))
	for i, s := range p.steps {
		out[i] = *s.action
	}
	return out
}

// Register persists one action row per step, in order, before anything runs.
func (p *Pipeline) Register(ctx context.Context, steps ...Step) error {
	if p.state != StatePending {
		return ErrAlreadyRun
	}
	for _, s := range steps {
		if s.Callback == nil {
			return fmt.Errorf("%w: %s", ErrNilCallback, s.Spec.Slug)
		}
		action := &entity.Action{
			OperationID:       p.op.ID,
			Slug:              s.Spec.Slug,
			Name:              s.Spec.Name,
			EquivalentCommand: s.Spec.EquivalentCommand,
			UserRecoverable:   s.Spec.UserRecoverable,
		}
		if err := p.store.CreateAction(ctx, action); err != nil {
			return fmt.Errorf("failed to register action %s: %w", s.Spec.Slug, err)
		}
		p.steps = append(p.steps, registeredStep{action: action, callback: s.Callback})
	}
	return nil
}

// Run marks the operation started and drives every action. A failed action
// surfaces as *ActionError after its failure has been persisted.
func (p *Pipeline) Run(ctx context.Context, site *entity.Site, scope Scope) error {
	if p.state != StatePending {
		return ErrAlreadyRun
	}
	if scope == nil {
		scope = Scope{}
	}

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int64("operation.id", int64(p.op.ID)),
		attribute.String("operation.type", string(p.op.Type)),
		attribute.Int64("site.id", int64(p.op.SiteID)),
		attribute.Int("pipeline.actions", len(p.steps)),
	))
	defer span.End()

	started := p.now()
	p.op.StartedTime = &started
	if err := p.store.MarkOperationStarted(ctx, p.op); err != nil {
		p.op.StartedTime = nil
		span.RecordError(err)
		return fmt.Errorf("failed to mark operation %d started: %w", p.op.ID, err)
	}
	p.state = StateRunning

	for _, step := range p.steps {
		if err := p.runStep(ctx, site, scope, step); err != nil {
			p.state = StateFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "action failed")
			return err
		}
	}

	p.state = StateSucceeded
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, site *entity.Site, scope Scope, step registeredStep) error {
	action := step.action
	ctx, span := tracer.Start(ctx, "pipeline.action", trace.WithAttributes(
		attribute.String("action.slug", action.Slug),
	))
	defer span.End()

	began := p.now()
	defer func() {
		actionDuration.Record(ctx, time.Since(began).Seconds(),
			metric.WithAttributes(attribute.String("slug", action.Slug)))
	}()

	action.StartedTime = &began
	if err := p.store.SaveAction(ctx, action); err != nil {
		return p.fail(ctx, action, scope, fmt.Errorf("failed to persist start: %w", err))
	}
	if p.observer != nil {
		p.observer(ctx, action)
	}

	if err := p.drive(ctx, site, scope, step); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return p.fail(ctx, action, scope, err)
	}

	action.SetResult(true)
	if err := p.store.SaveAction(ctx, action); err != nil {
		return &ActionError{Slug: action.Slug, Err: fmt.Errorf("failed to persist result: %w", err)}
	}
	actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slug", action.Slug),
		attribute.String("result", "success"),
	))
	return nil
}

func (p *Pipeline) drive(ctx context.Context, site *entity.Site, scope Scope, step registeredStep) error {
	action := step.action
	seq := step.callback(ctx, site, scope)
	if seq == nil {
		return nil
	}

	for item, err := range seq {
		if err != nil {
			return err
		}
		switch item.Kind {
		case KindMessage:
			action.AppendMessage(item.Text)
		case KindBeforeState:
			action.BeforeState = item.Text
		case KindAfterState:
			action.AfterState = item.Text
		default:
			return &MalformedOutputError{Slug: action.Slug, Item: item}
		}
		if err := p.store.SaveAction(ctx, action); err != nil {
			return fmt.Errorf("failed to persist progress: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, action *entity.Action, scope Scope, cause error) error {
	action.SetResult(false)
	action.AppendMessage(fmt.Sprintf("%s: %v\nScope: %s", ErrorKind(cause), cause, scope))
	actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slug", action.Slug),
		attribute.String("result", "failure"),
	))

	actionErr := &ActionError{Slug: action.Slug, Err: cause}
	if err := p.store.SaveAction(ctx, action); err != nil {
		return errors.Join(actionErr, fmt.Errorf("failed to persist failure of %s: %w", action.Slug, err))
	}
	return actionErr
}
