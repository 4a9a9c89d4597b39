package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vasiliy-maslov/restaurant-orders/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-orders/internal/recipe"
)

const tracerName = "github.com/vasiliy-maslov/restaurant-orders/internal/order"

type State int

const (
	StateValidating State = iota
	StateCheckingAvailability
	StatePersistingHeader
	StatePersistingItems
	StateAssigningStaff
	StateDeductingInventory
	StateCommitted
	StateRolledBack
	StateRejected
)

var stateNames = map[State]string{
	StateValidating:           "validating",
	StateCheckingAvailability: "checking_availability",
	StatePersistingHeader:     "persisting_header",
	StatePersistingItems:      "persisting_items",
	StateAssigningStaff:       "assigning_staff",
	StateDeductingInventory:   "deducting_inventory",
	StateCommitted:            "committed",
	StateRolledBack:           "rolled_back",
	StateRejected:             "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack || s == StateRejected
}

// AvailabilityChecker reports the first ingredient that cannot cover a requirement.
type AvailabilityChecker interface {
	Check(ctx context.Context, req recipe.Requirements) (*inventory.Shortfall, error)
}

// placement carries one order through the state machine.
type placement struct {
	order *Order
	uow   UnitOfWork
	id    int64
}

type step func(ctx context.Context, p *placement) (State, error)

// Placer runs the placement transaction: validate, check stock, then write
// header, items, staff and deductions in one unit of work, or nothing at all.
type Placer struct {
	resolver recipe.Resolver
	checker  AvailabilityChecker
	store    Store
	now      func() time.Time
	tracer   trace.Tracer
	steps    map[State]step
}

type PlacerOption func(*Placer)

func WithClock(now func() time.Time) PlacerOption {
	return func(p *Placer) { p.now = now }
}

func WithTracer(t trace.Tracer) PlacerOption {
	return func(p *Placer) { p.tracer = t }
}

func NewPlacer(resolver recipe.Resolver, checker AvailabilityChecker, store Store, opts ...PlacerOption) *Placer {
	p := &Placer{
		resolver: resolver,
		checker:  checker,
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.steps = map[State]step{
		StateValidating:           p.validate,
		StateCheckingAvailability: p.checkAvailability,
		StatePersistingHeader:     p.persistHeader,
		StatePersistingItems:      p.persistItems,
		StateAssigningStaff:       p.assignStaff,
		StateDeductingInventory:   p.deductInventory,
	}
	return p
}

// Place persists o and returns its new id. On success o.ID and the items'
// OrderID are set. The returned error can be classified with OutcomeOf.
func (pl *Placer) Place(ctx context.Context, o *Order) (orderID int64, err error) {
	if o == nil {
		return 0, validationError("order is nil")
	}

	ctx, span := pl.tracer.Start(ctx, "order.place")
	defer span.End()

	p := &placement{order: o}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic_value", r).Msg("placement: panic recovered, rolling back")
			if p.uow != nil {
				if rbErr := p.uow.Rollback(ctx); rbErr != nil {
					log.Error().Err(rbErr).Msg("placement: failed to rollback after panic")
				}
			}
			panic(r)
		}
	}()

	state := pl.run(ctx, span, p, &err)
	state, err = pl.finish(ctx, span, p, state, err)

	span.SetAttributes(attribute.String("order.final_state", state.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, OutcomeOf(err).String())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("order.id", p.id))
	log.Info().Int64("order_id", p.id).Int64("customer_id", o.CustomerID).Int("items", len(o.Items)).Msg("placement: order placed")
	return p.id, nil
}

// run drives the steps until a terminal state is proposed.
func (pl *Placer) run(ctx context.Context, span trace.Span, p *placement, errOut *error) State {
	state := StateValidating
	for !state.Terminal() {
		next, err := pl.steps[state](ctx, p)
		if err != nil {
			*errOut = err
			next = p.failureState(err)
		}
		pl.transition(span, state, next)
		state = next
	}
	return state
}

// finish commits or rolls back according to the terminal state alone.
func (pl *Placer) finish(ctx context.Context, span trace.Span, p *placement, state State, err error) (State, error) {
	switch state {
	case StateCommitted:
		if commitErr := p.uow.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Int64("order_id", p.id).Msg("placement: failed to commit")
			pl.transition(span, state, StateRolledBack)
			pl.rollback(ctx, p)
			return StateRolledBack, fmt.Errorf("placement: failed to commit order %d: %w: %w", p.id, ErrPersistence, commitErr)
		}
		p.order.ID = p.id
		for i := range p.order.Items {
			p.order.Items[i].OrderID = p.id
		}
		return state, nil
	case StateRolledBack:
		log.Warn().Err(err).Int64("customer_id", p.order.CustomerID).Msg("placement: transaction failed, rolling back")
		pl.rollback(ctx, p)
		return state, err
	default:
		log.Info().Err(err).Int64("customer_id", p.order.CustomerID).Msg("placement: order rejected")
		return state, err
	}
}

func (pl *Placer) rollback(ctx context.Context, p *placement) {
	if p.uow == nil {
		return
	}
	if rbErr := p.uow.Rollback(ctx); rbErr != nil {
		log.Error().Err(rbErr).Msg("placement: failed to rollback transaction")
	}
}

func (pl *Placer) transition(span trace.Span, from, to State) {
	span.AddEvent("transition", trace.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	log.Debug().Stringer("from", from).Stringer("to", to).Msg("placement: state transition")
}

// failureState maps a step error to its terminal state. Nothing has been
// written while no unit of work is open, so such failures are rejections.
func (p *placement) failureState(err error) State {
	if p.uow == nil && (errors.Is(err, ErrValidation) || errors.Is(err, ErrInsufficientInventory)) {
		return StateRejected
	}
	return StateRolledBack
}

func (pl *Placer) validate(_ context.Context, p *placement) (State, error) {
	o := p.order
	if o.CustomerID <= 0 {
		return StateRejected, validationError("customer id must be positive, got %d", o.CustomerID)
	}
	if len(o.Items) == 0 {
		return StateRejected, validationError("order must contain at least one item")
	}
	for i, it := range o.Items {
		if it.ProductID <= 0 {
			return StateRejected, validationError("item %d: product id must be positive, got %d", i, it.ProductID)
		}
		if it.Quantity <= 0 {
			return StateRejected, validationError("item %d: quantity for product %d must be greater than zero", i, it.ProductID)
		}
		if it.UnitPrice.IsNegative() {
			return StateRejected, validationError("item %d: price for product %d cannot be negative", i, it.ProductID)
		}
	}
	if len(o.EmployeeIDs) == 0 {
		return StateRejected, validationError("at least one employee must be assigned")
	}
	seen := make(map[int64]struct{}, len(o.EmployeeIDs))
	for _, id := range o.EmployeeIDs {
		if id <= 0 {
			return StateRejected, validationError("employee id must be positive, got %d", id)
		}
		if _, dup := seen[id]; dup {
			return StateRejected, validationError("employee %d assigned twice", id)
		}
		seen[id] = struct{}{}
	}
	if !o.Type.Valid() {
		return StateRejected, validationError("unknown order type %q", o.Type)
	}
	if o.Status != "" && !o.Status.Valid() {
		return StateRejected, validationError("unknown order status %q", o.Status)
	}
	if o.PaymentStatus != "" && !o.PaymentStatus.Valid() {
		return StateRejected, validationError("unknown payment status %q", o.PaymentStatus)
	}

	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentUnpaid
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = pl.now()
	}
	o.TotalAmount = o.Total()

	return StateCheckingAvailability, nil
}

func (pl *Placer) checkAvailability(ctx context.Context, p *placement) (State, error) {
	req, err := Aggregate(ctx, pl.resolver, p.order.Items)
	if err != nil {
		return StateRolledBack, fmt.Errorf("placement: %w: %w", ErrPersistence, err)
	}

	shortfall, err := pl.checker.Check(ctx, req)
	if err != nil {
		return StateRolledBack, fmt.Errorf("placement: availability check failed: %w: %w", ErrPersistence, err)
	}
	if shortfall != nil {
		return StateRejected, fmt.Errorf("%w: ingredient %d needs %s, %s in stock",
			ErrInsufficientInventory, shortfall.IngredientID, shortfall.Required, shortfall.Available)
	}

	return StatePersistingHeader, nil
}

func (pl *Placer) persistHeader(ctx context.Context, p *placement) (State, error) {
	uow, err := pl.store.Begin(ctx)
	if err != nil {
		return StateRolledBack, fmt.Errorf("placement: %w: %w", ErrPersistence, err)
	}
	p.uow = uow

	id, err := uow.InsertOrder(ctx, p.order)
	if err != nil {
		return StateRolledBack, fmt.Errorf("placement: %w: %w", ErrPersistence, err)
	}
	p.id = id

	return StatePersistingItems, nil
}

func (pl *Placer) persistItems(ctx context.Context, p *placement) (State, error) {
	n, err := p.uow.InsertItems(ctx, p.id, p.order.Items)
	if err != nil {
		return StateRolledBack, fmt.Errorf("placement: %w: %w", ErrPersistence, err)
	}
	if n != len(p.order.Items) {
		return StateRolledBack, fmt.Errorf("placement: %w: wrote %d of %d items for order %d", ErrPartialBatch, n, len(p.order.Items), p.id)
	}
	return StateAssigningStaff, nil
}

func (pl *Placer) assignStaff(ctx context.Context, p *placement) (State, error) {
	n, err := p.uow.AssignEmployees(ctx, p.id, p.order.EmployeeIDs)
	if err != nil {
		return StateRolledBack, fmt.Errorf("placement: %w: %w", ErrPersistence, err)
	}
	if n != len(p.order.EmployeeIDs) {
		return StateRolledBack, fmt.Errorf("placement: %w: assigned %d of %d employees to order %d", ErrPartialBatch, n, len(p.order.EmployeeIDs), p.id)
	}
	return StateDeductingInventory, nil
}

// deductInventory re-aggregates and decrements in ascending ingredient id
// order, so concurrent placements lock ingredient rows in the same order.
func (pl *Placer) deductInventory(ctx context.Context, p *placement) (State, error) {
	req, err := Aggregate(ctx, pl.resolver, p.order.Items)
	if err != nil {
		return StateRolledBack, fmt.Errorf("placement: %w: %w", ErrPersistence, err)
	}

	responsible := ResponsibleEmployee(p.order)
	note := fmt.Sprintf("Used in order #%d", p.id)

	for _, ingredientID := range req.SortedIDs() {
		qty := req[ingredientID]
		if qty.IsZero() {
			continue
		}
		err := p.uow.AdjustStock(ctx, inventory.Adjustment{
			IngredientID: ingredientID,
			Delta:        qty.Neg(),
			EmployeeID:   responsible,
			Reason:       inventory.ReasonUsage,
			Note:         note,
		})
		if err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return StateRolledBack, fmt.Errorf("placement: %w: %w: %w", ErrPersistence, ErrInsufficientInventory, err)
			}
			return StateRolledBack, fmt.Errorf("placement: %w: %w", ErrPersistence, err)
		}
	}

	return StateCommitted, nil
}
