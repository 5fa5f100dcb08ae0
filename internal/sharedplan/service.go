package sharedplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dailycompanion/companion/internal/events"
	"github.com/dailycompanion/companion/internal/logging"
	"github.com/dailycompanion/companion/internal/notify"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/dailycompanion/companion/internal/sharedplan"

const (
	defaultMaxMessageLength = 2000
	defaultMessageLimit     = 200
	maxMessageLimit         = 500
)

// Notifier delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) (notify.Notification, error)
}

// MessageFilter rewrites chat content before it is stored and reports how
// many regions it changed.
type MessageFilter interface {
	Filter(content string) (string, int)
}

// Service implements plan, membership, invitation, task and discussion
// operations on top of a Store.
type Service struct {
	store     Store
	publisher events.Publisher
	notifier  Notifier
	filter    MessageFilter
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time

	maxMessageLength int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the plan event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithNotifier sets the notification sink used on invitation changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMessageFilter sets the chat content filter.
func WithMessageFilter(f MessageFilter) Option {
	return func(s *Service) { s.filter = f }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxMessageLength caps chat messages at n runes.
func WithMaxMessageLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxMessageLength = n
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a Service.
func NewService(store Store, logger *logging.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Service{
		store:            store,
		publisher:        events.Nop{},
		logger:           logger,
		tracer:           otel.Tracer(instrumentationName),
		now:              time.Now,
		maxMessageLength: defaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PlanView is a plan together with the caller's role and permissions.
type PlanView struct {
	Plan
	Role        Role        `json:"role"`
	Permissions Permissions `json:"permissions"`
}

func viewOf(p Plan, actor string) PlanView {
	role := EffectiveRole(&p, actor)
	return PlanView{Plan: p, Role: role, Permissions: permissionsOf(role)}
}

// PlanInput holds the fields of a new plan.
type PlanInput struct {
	Name        string
	Description string
}

// PlanPatch holds optional plan metadata changes.
type PlanPatch struct {
	Name        *string
	Description *string
}

// CreatePlan creates a plan owned by actor.
func (s *Service) CreatePlan(ctx context.Context, actor string, in PlanInput) (plan Plan, err error) {
	ctx, span, done := s.begin(ctx, "plan.create", "")
	defer func() { done(err) }()

	name, err := cleanText("name", in.Name, maxNameLen, true)
	if err != nil {
		return Plan{}, err
	}
	desc, err := cleanText("description", in.Description, maxDescriptionLen, false)
	if err != nil {
		return Plan{}, err
	}

	now := s.now().UTC()
	plan = Plan{
		ID:          uuid.New().String(),
		Name:        name,
		Description: desc,
		OwnerID:     actor,
		Members:     []Member{},
		Tasks:       []Task{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	span.SetAttributes(attribute.String("plan.id", plan.ID))

	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return Plan{}, fmt.Errorf("creating plan: %w", err)
	}

	s.logger.Info(logging.WithPlanID(ctx, plan.ID), "plan created")
	return plan, nil
}

// GetPlan returns the plan if actor is the owner or a member.
func (s *Service) GetPlan(ctx context.Context, actor, planID string) (view PlanView, err error) {
	ctx, _, done := s.begin(ctx, "plan.get", planID)
	defer func() { done(err) }()

	plan, err := s.authorize(ctx, planID, actor, ActionView, "You are not a member of this plan")
	if err != nil {
		return PlanView{}, err
	}
	return viewOf(plan, actor), nil
}

// ListPlans returns the plans actor owns or belongs to.
func (s *Service) ListPlans(ctx context.Context, actor string) (views []PlanView, err error) {
	ctx, _, done := s.begin(ctx, "plan.list", "")
	defer func() { done(err) }()

	plans, err := s.store.ListPlansForUser(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	views = make([]PlanView, 0, len(plans))
	for _, p := range plans {
		views = append(views, viewOf(p, actor))
	}
	return views, nil
}

// UpdatePlan changes plan metadata. Requires manage permission.
func (s *Service) UpdatePlan(ctx context.Context, actor, planID string, patch PlanPatch) (view PlanView, err error) {
	ctx, _, done := s.begin(ctx, "plan.update", planID)
	defer func() { done(err) }()

	plan, err := s.authorize(ctx, planID, actor, ActionManage, "You don't have permission to edit this plan")
	if err != nil {
		return PlanView{}, err
	}
	if patch.Name == nil && patch.Description == nil {
		return PlanView{}, invalid("no plan fields to update")
	}

	if patch.Name != nil {
		if plan.Name, err = cleanText("name", *patch.Name, maxNameLen, true); err != nil {
			return PlanView{}, err
		}
	}
	if patch.Description != nil {
		if plan.Description, err = cleanText("description", *patch.Description, maxDescriptionLen, false); err != nil {
			return PlanView{}, err
		}
	}

	plan.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePlanDetails(ctx, plan.ID, plan.Name, plan.Description, plan.UpdatedAt); err != nil {
		return PlanView{}, s.storeErr(err, "Plan not found", "updating plan")
	}

	s.emit(ctx, events.PlanUpdated, plan.ID, actor, map[string]string{
		"name":        plan.Name,
		"description": plan.Description,
	})
	return viewOf(plan, actor), nil
}

// DeletePlan removes the plan and everything that belongs to it. Owner only.
func (s *Service) DeletePlan(ctx context.Context, actor, planID string) (err error) {
	ctx, _, done := s.begin(ctx, "plan.delete", planID)
	defer func() { done(err) }()

	if _, err := s.authorize(ctx, planID, actor, ActionDelete, "Only the plan owner can delete the plan"); err != nil {
		return err
	}
	if err := s.store.DeletePlan(ctx, planID); err != nil {
		return s.storeErr(err, "Plan not found", "deleting plan")
	}

	s.logger.Info(ctx, "plan deleted")
	s.emit(ctx, events.PlanDeleted, planID, actor, nil)
	return nil
}

// begin starts a span for op and returns a completion func that records the
// outcome on the span and in metrics.
func (s *Service) begin(ctx context.Context, op, planID string) (context.Context, trace.Span, func(error)) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "sharedplan."+op)
	if planID != "" {
		span.SetAttributes(attribute.String("plan.id", planID))
		ctx = logging.WithPlanID(ctx, planID)
	}

	return ctx, span, func(err error) {
		outcome := outcomeOf(err)
		operationsTotal.WithLabelValues(op, outcome).Inc()
		operationDuration.WithLabelValues(op).Observe(s.now().Sub(start).Seconds())

		span.SetAttributes(attribute.String("outcome", outcome))
		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error(ctx, "shared plan operation failed", zap.String("operation", op), zap.Error(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// loadPlan fetches the current plan state.
func (s *Service) loadPlan(ctx context.Context, planID string) (Plan, error) {
	if planID == "" {
		return Plan{}, notFound("Plan not found")
	}
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return Plan{}, s.storeErr(err, "Plan not found", "loading plan")
	}
	return plan, nil
}

// authorize loads the plan and checks that actor may perform action on it.
func (s *Service) authorize(ctx context.Context, planID, actor string, action Action, denied string) (Plan, error) {
	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		return Plan{}, err
	}
	if !Can(&plan, actor, action) {
		s.logger.Debug(ctx, "permission denied",
			zap.String("action", string(action)),
			zap.String("role", EffectiveRole(&plan, actor).String()),
		)
		return Plan{}, forbidden(denied)
	}
	return plan, nil
}

// storeErr maps storage not-found errors to a caller-facing message and wraps
// everything else.
func (s *Service) storeErr(err error, missing, doing string) error {
	if errors.Is(err, ErrNotFound) {
		return notFound(missing)
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	return fmt.Errorf("%s: %w", doing, err)
}

// emit publishes a plan event. Failures are logged, never returned: the
// store is the source of truth and clients can always fall back to polling.
func (s *Service) emit(ctx context.Context, typ events.Type, planID, actor string, data any) {
	ev, err := events.New(typ, planID, actor, s.now().UTC(), data)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		eventPublishFailures.WithLabelValues(string(typ)).Inc()
		s.logger.Warn(ctx, "plan event publish failed", zap.String("event", string(typ)), zap.Error(err))
	}
}

// sendNotification delivers n when a notifier is configured. Failures are
// logged because the triggering change has already been committed.
func (s *Service) sendNotification(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn(ctx, "notification failed",
			zap.String("kind", string(n.Kind)),
			zap.String("recipient", n.UserID),
			zap.Error(err),
		)
	}
}
