package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradeassist/src/connectors"
	"tradeassist/src/model"
	"tradeassist/src/positions"
	"tradeassist/src/repository"
	"tradeassist/src/resilience"
)

type fakeBroker struct {
	placeResult *connectors.PlaceOrderResult
	placeErr    error
	placeCalls  int
	cancelErr   error
	cancelled   []string
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, req connectors.OrderRequest) (*connectors.PlaceOrderResult, error) {
	b.placeCalls++
	if b.placeErr != nil {
		return nil, b.placeErr
	}
	return b.placeResult, nil
}

func (b *fakeBroker) OrderStatus(ctx context.Context, brokerOrderID string) (*connectors.OrderStatusResult, error) {
	return nil, errors.New("not used")
}

func (b *fakeBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if b.cancelErr != nil {
		return b.cancelErr
	}
	b.cancelled = append(b.cancelled, brokerOrderID)
	return nil
}

type fakeOrderRepo struct {
	nextID      uint
	transitions []string
	updates     []map[string]interface{}
	retries     int
	deferred    int
	fills       []*model.Fill
	staleOnce   bool
	reloaded    *model.Order
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *model.Order) error {
	r.nextID++
	order.ID = r.nextID
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	return r.reloaded, nil
}

func (r *fakeOrderRepo) TransitionStatus(ctx context.Context, order *model.Order, newStatus string, updates map[string]interface{}) error {
	if r.staleOnce {
		r.staleOnce = false
		return repository.ErrStaleOrder
	}
	order.Status = newStatus
	r.transitions = append(r.transitions, newStatus)
	r.updates = append(r.updates, updates)
	return nil
}

func (r *fakeOrderRepo) lastUpdates() map[string]interface{} {
	if len(r.updates) == 0 {
		return nil
	}
	return r.updates[len(r.updates)-1]
}

func (r *fakeOrderRepo) RecordRetryAttempt(ctx context.Context, order *model.Order, reason string) error {
	r.retries++
	order.RetryCount++
	order.Reason = reason
	return nil
}

func (r *fakeOrderRepo) MarkPlacementDeferred(ctx context.Context, order *model.Order, reason string) error {
	r.deferred++
	if order.FirstFailedAt == nil {
		now := time.Now()
		order.FirstFailedAt = &now
	}
	order.Reason = reason
	return nil
}

func (r *fakeOrderRepo) SetBrokerOrderID(ctx context.Context, order *model.Order, brokerOrderID string) error {
	order.BrokerOrderID = &brokerOrderID
	return nil
}

func (r *fakeOrderRepo) AppendFill(ctx context.Context, fill *model.Fill) error {
	r.fills = append(r.fills, fill)
	return nil
}

type fakePositionRepo struct {
	open    *model.Position
	created *model.Position
	saved   *model.Position
}

func (r *fakePositionRepo) Create(ctx context.Context, pos *model.Position) error {
	r.created = pos
	return nil
}

func (r *fakePositionRepo) Save(ctx context.Context, pos *model.Position) error {
	r.saved = pos
	return nil
}

func (r *fakePositionRepo) FindOpenByUserAndSymbol(ctx context.Context, userID uint, symbol string) (*model.Position, error) {
	return r.open, nil
}

type fakeExceptionRepo struct {
	captured []*model.Exception
}

func (r *fakeExceptionRepo) Create(ctx context.Context, exc *model.Exception) error {
	r.captured = append(r.captured, exc)
	return nil
}

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) Emit(ctx context.Context, userID uint, event string, fields map[string]interface{}) {
	n.events = append(n.events, event)
}

func newTestLifecycle(broker *fakeBroker) (*OrderLifecycle, *fakeOrderRepo, *fakePositionRepo, *fakeNotifier, *fakeExceptionRepo) {
	orders := &fakeOrderRepo{}
	posRepo := &fakePositionRepo{}
	notif := &fakeNotifier{}
	excs := &fakeExceptionRepo{}

	l := &OrderLifecycle{
		broker:     broker,
		orderRepo:  orders,
		posRepo:    posRepo,
		exceptions: excs,
		aggregator: positions.NewAggregator(),
		notifier:   notif,
		maxRetries: 3,
		locks:      newKeyedMutex(),
	}
	return l, orders, posRepo, notif, excs
}

func pendingOrder(qty float64) *model.Order {
	return &model.Order{
		UserID:    1,
		Symbol:    "RELIANCE",
		Side:      model.OrderSideBuy,
		OrderType: model.OrderTypeMarket,
		Quantity:  qty,
		Status:    model.OrderStatusPending,
	}
}

func TestLifecycleSubmitPlacesOrder(t *testing.T) {
	broker := &fakeBroker{placeResult: &connectors.PlaceOrderResult{BrokerOrderID: "240101000001"}}
	l, orders, _, _, _ := newTestLifecycle(broker)

	order := pendingOrder(10)
	if err := l.Submit(context.Background(), order); err != nil {
		t.Fatalf("expected submit to succeed, got %v", err)
	}

	if order.ID == 0 {
		t.Fatal("expected order persisted before placement")
	}
	if order.BrokerOrderID == nil || *order.BrokerOrderID != "240101000001" {
		t.Fatalf("expected broker order id stamped, got %+v", order.BrokerOrderID)
	}
	if len(orders.transitions) != 0 {
		t.Fatalf("expected no status transitions on clean placement, got %v", orders.transitions)
	}
}

func TestLifecycleSubmitRetryableFailureStaysPending(t *testing.T) {
	broker := &fakeBroker{placeErr: connectors.NewBrokerError("NetworkException", "connect timeout")}
	l, orders, _, notif, _ := newTestLifecycle(broker)

	order := pendingOrder(10)
	err := l.Submit(context.Background(), order)
	if err == nil {
		t.Fatal("expected the placement error to surface")
	}

	if order.Status != model.OrderStatusPending {
		t.Fatalf("expected order to stay pending for the retry dispatcher, got %q", order.Status)
	}
	if orders.retries != 1 || order.RetryCount != 1 {
		t.Fatalf("expected one retry attempt recorded, got repo=%d order=%d", orders.retries, order.RetryCount)
	}
	if len(notif.events) != 0 {
		t.Fatalf("expected no notification for a scheduled retry, got %v", notif.events)
	}
}

func TestLifecycleSubmitRejectionFailsImmediately(t *testing.T) {
	broker := &fakeBroker{placeErr: connectors.NewBrokerError("MarginException", "insufficient funds")}
	l, orders, _, notif, _ := newTestLifecycle(broker)

	order := pendingOrder(10)
	if err := l.Submit(context.Background(), order); err == nil {
		t.Fatal("expected the rejection to surface")
	}

	if order.Status != model.OrderStatusFailed {
		t.Fatalf("expected rejected order to fail without retries, got %q", order.Status)
	}
	if orders.retries != 0 {
		t.Fatalf("expected no retry bookkeeping for a rejection, got %d", orders.retries)
	}
	if len(notif.events) != 1 || notif.events[0] != model.EventOrderRejected {
		t.Fatalf("expected order_rejected notification, got %v", notif.events)
	}

	// Failed is terminal: the transition must stamp closed_at and the
	// first failure time.
	updates := orders.lastUpdates()
	if _, ok := updates["closed_at"]; !ok {
		t.Fatalf("expected closed_at on the failed transition, got %v", updates)
	}
	if _, ok := updates["first_failed_at"]; !ok {
		t.Fatalf("expected first_failed_at on the failed transition, got %v", updates)
	}
}

func TestLifecycleCircuitOpenDoesNotConsumeRetryBudget(t *testing.T) {
	broker := &fakeBroker{placeErr: resilience.ErrCircuitOpen}
	l, orders, _, notif, _ := newTestLifecycle(broker)

	order := pendingOrder(10)
	err := l.Submit(context.Background(), order)
	if err == nil {
		t.Fatal("expected the fail-fast error to surface")
	}

	if order.Status != model.OrderStatusPending {
		t.Fatalf("expected order to stay pending while the breaker is open, got %q", order.Status)
	}
	if orders.retries != 0 || order.RetryCount != 0 {
		t.Fatalf("expected untouched retry budget, got repo=%d order=%d", orders.retries, order.RetryCount)
	}
	if orders.deferred != 1 {
		t.Fatalf("expected one deferred placement recorded, got %d", orders.deferred)
	}
	if order.FirstFailedAt == nil {
		t.Fatal("expected first_failed_at stamped so the dispatcher can see the order")
	}
	if len(orders.transitions) != 0 {
		t.Fatalf("expected no status transitions, got %v", orders.transitions)
	}
	if len(notif.events) != 0 {
		t.Fatalf("expected no notification for an open breaker, got %v", notif.events)
	}

	// Repeated fail-fast ticks still never touch the budget, so the
	// breaker alone can never force the order to failed.
	for i := 0; i < 5; i++ {
		if err := l.Submit(context.Background(), order); err == nil {
			t.Fatal("expected the fail-fast error to surface")
		}
	}
	if order.Status != model.OrderStatusPending || orders.retries != 0 || order.RetryCount != 0 {
		t.Fatalf("expected pending with zero retries after repeated open-breaker ticks, got status=%q retries=%d",
			order.Status, order.RetryCount)
	}
}

func TestLifecycleRetryBudgetExhaustedForcesFailed(t *testing.T) {
	broker := &fakeBroker{placeErr: connectors.NewBrokerError("GatewayTimeout", "timeout")}
	l, orders, _, _, excs := newTestLifecycle(broker)

	order := pendingOrder(10)
	order.ID = 5
	order.RetryCount = 3

	if err := l.Submit(context.Background(), order); err == nil {
		t.Fatal("expected the placement error to surface")
	}

	if order.Status != model.OrderStatusFailed {
		t.Fatalf("expected order forced to failed after retry budget, got %q", order.Status)
	}
	if orders.retries != 0 {
		t.Fatalf("expected no further retry attempts, got %d", orders.retries)
	}
	if len(excs.captured) != 1 {
		t.Fatalf("expected terminal failure captured as exception, got %d", len(excs.captured))
	}
}

func TestLifecycleApplyFillPartialThenComplete(t *testing.T) {
	l, orders, posRepo, notif, _ := newTestLifecycle(&fakeBroker{})

	order := pendingOrder(10)
	order.ID = 7
	ts := time.Date(2026, 2, 10, 10, 15, 0, 0, time.UTC)

	if err := l.ApplyFill(context.Background(), order, 4, 100, ts); err != nil {
		t.Fatalf("unexpected error applying partial fill: %v", err)
	}

	if order.Status != model.OrderStatusPartiallyFilled {
		t.Fatalf("expected partially_filled, got %q", order.Status)
	}
	if posRepo.created == nil || posRepo.created.Quantity != 4 || posRepo.created.AvgPrice != 100 {
		t.Fatalf("expected position opened from first fill, got %+v", posRepo.created)
	}

	// Second fill completes the order; exec price is quantity-weighted.
	posRepo.open = posRepo.created
	if err := l.ApplyFill(context.Background(), order, 6, 110, ts.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error applying completing fill: %v", err)
	}

	if order.Status != model.OrderStatusFilled {
		t.Fatalf("expected filled, got %q", order.Status)
	}
	if len(orders.fills) != 2 {
		t.Fatalf("expected 2 fills persisted, got %d", len(orders.fills))
	}
	if got := weightedFillPrice(order.Fills); got != 106 {
		t.Fatalf("expected weighted execution price 106, got %v", got)
	}
	if closedAt, ok := orders.lastUpdates()["closed_at"]; !ok || closedAt != ts.Add(time.Minute) {
		t.Fatalf("expected closed_at stamped with the completing fill time, got %v", orders.lastUpdates())
	}
	if posRepo.saved == nil || posRepo.saved.Quantity != 10 {
		t.Fatalf("expected position grown to 10, got %+v", posRepo.saved)
	}

	want := []string{model.EventPartialFill, model.EventOrderExecuted, model.EventReentry}
	if len(notif.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, notif.events)
	}
	for i, event := range want {
		if notif.events[i] != event {
			t.Fatalf("expected events %v, got %v", want, notif.events)
		}
	}
}

func TestLifecycleFillOnTerminalOrderDropped(t *testing.T) {
	l, orders, _, notif, _ := newTestLifecycle(&fakeBroker{})

	order := pendingOrder(10)
	order.ID = 7
	order.Status = model.OrderStatusCancelled

	if err := l.ApplyFill(context.Background(), order, 4, 100, time.Now()); err != nil {
		t.Fatalf("expected stale fill to be dropped silently, got %v", err)
	}

	if len(orders.fills) != 0 || len(notif.events) != 0 {
		t.Fatalf("expected no writes for a stale fill, fills=%d events=%v", len(orders.fills), notif.events)
	}
}

func TestLifecycleCancel(t *testing.T) {
	broker := &fakeBroker{}
	l, orders, _, notif, _ := newTestLifecycle(broker)

	brokerID := "240101000009"
	order := pendingOrder(10)
	order.ID = 9
	order.BrokerOrderID = &brokerID

	if err := l.Cancel(context.Background(), order, "user requested"); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}

	if len(broker.cancelled) != 1 || broker.cancelled[0] != brokerID {
		t.Fatalf("expected broker cancel call, got %v", broker.cancelled)
	}
	if order.Status != model.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", order.Status)
	}
	if len(notif.events) != 1 || notif.events[0] != model.EventOrderCancelled {
		t.Fatalf("expected order_cancelled notification, got %v", notif.events)
	}
	if _, ok := orders.lastUpdates()["closed_at"]; !ok {
		t.Fatalf("expected closed_at on the cancelled transition, got %v", orders.lastUpdates())
	}
}

func TestLifecycleOversellSurfacedNotClamped(t *testing.T) {
	l, _, posRepo, _, excs := newTestLifecycle(&fakeBroker{})

	posRepo.open = &model.Position{
		ID:       3,
		UserID:   1,
		Symbol:   "RELIANCE",
		Quantity: 5,
		AvgPrice: 100,
		Status:   model.PositionStatusOpen,
	}

	order := pendingOrder(10)
	order.ID = 11
	order.Side = model.OrderSideSell

	err := l.ApplyFill(context.Background(), order, 10, 120, time.Now())
	if !errors.Is(err, positions.ErrOversizedSell) {
		t.Fatalf("expected ErrOversizedSell, got %v", err)
	}

	if posRepo.saved != nil {
		t.Fatal("expected inconsistent position left unsaved")
	}
	if posRepo.open.Quantity != 5 {
		t.Fatalf("expected position untouched, got qty %v", posRepo.open.Quantity)
	}
	if len(excs.captured) != 1 {
		t.Fatalf("expected inconsistency captured as exception, got %d", len(excs.captured))
	}
}

func TestLifecycleStaleTransitionAgainstTerminalOrderAbsorbed(t *testing.T) {
	l, orders, _, _, _ := newTestLifecycle(&fakeBroker{placeErr: connectors.NewBrokerError("MarginException", "no funds")})

	order := pendingOrder(10)
	order.ID = 13
	orders.staleOnce = true
	orders.reloaded = &model.Order{ID: 13, Status: model.OrderStatusCancelled}

	// Another task cancelled the order between our read and the failure
	// write: the transition is dropped and the fresh state adopted.
	if err := l.RecordFailure(context.Background(), order, connectors.NewBrokerError("MarginException", "no funds")); err != nil {
		t.Fatalf("expected stale transition to be absorbed, got %v", err)
	}

	if order.Status != model.OrderStatusCancelled {
		t.Fatalf("expected fresh terminal state adopted, got %q", order.Status)
	}
}
