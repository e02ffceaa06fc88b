package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"dosecore/internal/infra/docvault"
	"dosecore/internal/infra/persistence/memory"
	"dosecore/pkg/decay"
	"dosecore/pkg/domain"
)

// RoleResolver maps a caller identity to the role used for approval guard
// checks. The core never consults ambient session state; actors are passed
// explicitly per call.
type RoleResolver interface {
	Resolve(ctx context.Context, actor string) (string, bool)
}

// StaticRoleResolver resolves roles from a fixed map.
type StaticRoleResolver map[string]string

// Resolve implements RoleResolver.
func (m StaticRoleResolver) Resolve(_ context.Context, actor string) (string, bool) {
	role, ok := m[actor]
	return role, ok
}

// EventSink receives committed audit entries for downstream display (journey
// timelines, notifications). Delivery is fire-and-forget and never gates a
// transition's success.
type EventSink interface {
	Publish(entries []AuditEntry)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(entries []AuditEntry)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(entries []AuditEntry) { f(entries) }

// DefaultDailyCapacityMinutes is the production capacity assumed when no
// explicit capacity is configured.
const DefaultDailyCapacityMinutes = 480

// Service exposes the fulfillment core operations: order and batch CRUD,
// decay-compensated planning, capacity reservation, lifecycle transitions,
// and approval workflows. All mutations run inside store transactions.
type Service struct {
	store         PersistentStore
	roles         RoleResolver
	sink          EventSink
	logger        Logger
	metrics       MetricsRecorder
	tracer        Tracer
	capacity      decimal.Decimal
	bufferMinutes float64
	releaseSteps  map[domain.ReferenceKind][]ApprovalStep
	docs          docvault.Vault
	nowFn         func() time.Time
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger wires a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics wires a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer wires an operation tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithEventSink wires the audit event sink.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithRoleResolver wires the actor/role resolver used by approval guards.
func WithRoleResolver(r RoleResolver) Option {
	return func(s *Service) {
		if r != nil {
			s.roles = r
		}
	}
}

// WithDailyCapacity sets the total production-minutes available per calendar day.
func WithDailyCapacity(minutes float64) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.capacity = decimal.NewFromFloat(minutes)
		}
	}
}

// WithBufferMinutes sets the dispatch buffer added between QC completion and
// transport when computing production requirements.
func WithBufferMinutes(minutes float64) Option {
	return func(s *Service) {
		if minutes >= 0 {
			s.bufferMinutes = minutes
		}
	}
}

// WithReleaseSteps overrides the approval step definitions spawned for
// release-gated transitions of the given entity kind.
func WithReleaseSteps(kind domain.ReferenceKind, steps []ApprovalStep) Option {
	return func(s *Service) {
		if len(steps) > 0 {
			s.releaseSteps[kind] = append([]ApprovalStep(nil), steps...)
		}
	}
}

// WithClock overrides the service clock. Intended for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:         store,
		roles:         StaticRoleResolver{},
		sink:          EventSinkFunc(func([]AuditEntry) {}),
		logger:        noopLogger{},
		metrics:       noopMetrics{},
		tracer:        noopTracer{},
		capacity:      decimal.NewFromInt(DefaultDailyCapacityMinutes),
		bufferMinutes: 0,
		releaseSteps: map[domain.ReferenceKind][]ApprovalStep{
			KindOrder: {{StepOrder: 1, StepName: "qp_release", RequiredRole: "qualified_person"}},
			KindBatch: {
				{StepOrder: 1, StepName: "production_review", RequiredRole: "production_manager"},
				{StepOrder: 2, StepName: "qp_release", RequiredRole: "qualified_person"},
			},
		},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store gated by
// the default rules engine.
func NewInMemoryService(opts ...Option) *Service {
	s := NewService(nil, opts...)
	s.store = memory.NewStore(NewDefaultRulesEngine(s.capacity))
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// DailyCapacityMinutes returns the configured per-day capacity.
func (s *Service) DailyCapacityMinutes() decimal.Decimal { return s.capacity }

func (s *Service) instrument(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := time.Now()
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	if err != nil {
		s.logger.Warn("operation failed", "operation", operation, "error", err.Error())
	}
	return err
}

func (s *Service) publish(entries []AuditEntry) {
	if len(entries) == 0 {
		return
	}
	// Delivery happens outside the store lock and must not gate the caller.
	go s.sink.Publish(entries)
}

// CreateProduct persists product reference data after validating the isotope
// physics parameters.
func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, Result, error) {
	var created Product
	var res Result
	err := s.instrument(ctx, "create_product", func(ctx context.Context) error {
		if product.HalfLifeMinutes <= 0 {
			return domain.ValidationError{Field: "half_life_minutes", Reason: "must be positive"}
		}
		if product.OveragePercent <= 0 {
			return domain.ValidationError{Field: "overage_percent", Reason: "must be positive"}
		}
		for field, v := range map[string]float64{
			"synthesis_time_minutes": product.SynthesisTimeMinutes,
			"qc_time_minutes":        product.QCTimeMinutes,
			"shelf_life_minutes":     product.ShelfLifeMinutes,
		} {
			if v < 0 {
				return domain.ValidationError{Field: field, Reason: "must not be negative"}
			}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateProduct(product)
			return txErr
		})
		return err
	})
	return created, res, err
}

// CreateCustomer persists a customer record.
func (s *Service) CreateCustomer(ctx context.Context, customer Customer) (Customer, Result, error) {
	var created Customer
	var res Result
	err := s.instrument(ctx, "create_customer", func(ctx context.Context) error {
		if customer.TravelTimeMinutes < 0 {
			return domain.ValidationError{Field: "travel_time_minutes", Reason: "must not be negative"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateCustomer(customer)
			return txErr
		})
		return err
	})
	return created, res, err
}

// CreateMaterialLot records a received material lot.
func (s *Service) CreateMaterialLot(ctx context.Context, lot MaterialLot) (MaterialLot, Result, error) {
	var created MaterialLot
	var res Result
	err := s.instrument(ctx, "create_material_lot", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateMaterialLot(lot)
			return txErr
		})
		return err
	})
	return created, res, err
}

// CreateOrder validates the request, derives CalculatedProductionActivity
// through the decay calculator, and persists the order in draft status. Any
// caller-supplied production activity is discarded.
func (s *Service) CreateOrder(ctx context.Context, order Order) (Order, Result, error) {
	var created Order
	var res Result
	err := s.instrument(ctx, "create_order", func(ctx context.Context) error {
		if order.RequestedActivity <= 0 {
			return domain.ValidationError{Field: "requested_activity", Reason: "must be positive"}
		}
		if order.DeliveryWindowStart.IsZero() {
			return domain.ValidationError{Field: "delivery_window_start", Reason: "must be set"}
		}
		if !order.DeliveryWindowEnd.IsZero() && order.DeliveryWindowEnd.Before(order.DeliveryWindowStart) {
			return domain.ValidationError{Field: "delivery_window_end", Reason: "must not precede delivery_window_start"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			snap := tx.Snapshot()
			product, ok := snap.FindProduct(order.ProductID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityProduct, ID: order.ProductID}
			}
			customer, ok := snap.FindCustomer(order.CustomerID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityCustomer, ID: order.CustomerID}
			}
			plan, planErr := decay.ForOrder(order, product, customer, s.bufferMinutes)
			if planErr != nil {
				return planErr
			}
			order.CalculatedProductionActivity = plan.ProductionActivity
			if order.Status == "" {
				order.Status = domain.OrderStatusDraft
			}
			order.BatchID = nil
			var txErr error
			created, txErr = tx.CreateOrder(order)
			return txErr
		})
		return err
	})
	return created, res, err
}

// ProductionPlanForOrder recomputes the full production plan for an order.
// The plan is derived on demand; only the production activity is stored.
func (s *Service) ProductionPlanForOrder(ctx context.Context, orderID string) (decay.Plan, error) {
	var plan decay.Plan
	err := s.instrument(ctx, "production_plan", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			order, ok := v.FindOrder(orderID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityOrder, ID: orderID}
			}
			product, ok := v.FindProduct(order.ProductID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityProduct, ID: order.ProductID}
			}
			customer, ok := v.FindCustomer(order.CustomerID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityCustomer, ID: order.CustomerID}
			}
			var planErr error
			plan, planErr = decay.ForOrder(order, product, customer, s.bufferMinutes)
			return planErr
		})
	})
	return plan, err
}

// CreateBatch groups orders into a production batch. Orders must share the
// product, must not be terminal, and must not belong to another batch. When
// no target activity is given, the batch target is the sum of the orders'
// calculated production activities.
func (s *Service) CreateBatch(ctx context.Context, batch Batch) (Batch, Result, error) {
	var created Batch
	var res Result
	err := s.instrument(ctx, "create_batch", func(ctx context.Context) error {
		if len(batch.OrderIDs) == 0 {
			return domain.ValidationError{Field: "order_ids", Reason: "batch requires at least one order"}
		}
		if batch.PlannedStartTime.IsZero() {
			return domain.ValidationError{Field: "planned_start_time", Reason: "must be set"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			snap := tx.Snapshot()
			var targetSum float64
			for _, orderID := range batch.OrderIDs {
				order, ok := snap.FindOrder(orderID)
				if !ok {
					return domain.ErrNotFound{Entity: EntityOrder, ID: orderID}
				}
				if order.BatchID != nil {
					return domain.GuardViolation{
						Entity: Reference{Kind: KindOrder, ID: orderID},
						Reason: "order already belongs to batch " + *order.BatchID,
					}
				}
				if orderTerminal(order.Status) {
					return domain.GuardViolation{
						Entity: Reference{Kind: KindOrder, ID: orderID},
						Reason: "order is terminal",
					}
				}
				if batch.ProductID == "" {
					batch.ProductID = order.ProductID
				} else if batch.ProductID != order.ProductID {
					return domain.ValidationError{Field: "order_ids", Reason: "orders span multiple products"}
				}
				targetSum += order.CalculatedProductionActivity
			}
			if batch.TargetActivity <= 0 {
				batch.TargetActivity = targetSum
			}
			if batch.Status == "" {
				batch.Status = domain.BatchStatusPlanned
			}
			var txErr error
			created, txErr = tx.CreateBatch(batch)
			if txErr != nil {
				return txErr
			}
			for _, orderID := range batch.OrderIDs {
				batchID := created.ID
				if _, txErr = tx.UpdateOrder(orderID, func(o *Order) error {
					o.BatchID = &batchID
					return nil
				}); txErr != nil {
					return txErr
				}
			}
			return nil
		})
		return err
	})
	return created, res, err
}

// AddQCItem attaches a quality-control test to a batch in pending status.
func (s *Service) AddQCItem(ctx context.Context, batchID, name string) (QCItem, Result, error) {
	var created QCItem
	var res Result
	err := s.instrument(ctx, "add_qc_item", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateQCItem(QCItem{
				BatchID: batchID,
				Name:    name,
				Status:  domain.QCStatusPending,
			})
			return txErr
		})
		return err
	})
	return created, res, err
}

// ResolveQCItem records the outcome of a QC test.
func (s *Service) ResolveQCItem(ctx context.Context, itemID string, status QCStatus) (QCItem, Result, error) {
	var updated QCItem
	var res Result
	err := s.instrument(ctx, "resolve_qc_item", func(ctx context.Context) error {
		switch status {
		case domain.QCStatusPassed, domain.QCStatusFailed, domain.QCStatusQuarantined:
		default:
			return domain.ValidationError{Field: "status", Reason: "must be passed, failed, or quarantined"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateQCItem(itemID, func(q *QCItem) error {
				q.Status = status
				return nil
			})
			return txErr
		})
		return err
	})
	return updated, res, err
}
