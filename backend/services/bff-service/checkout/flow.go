package checkout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checkout is a started checkout: the order created for it and the widget
// configuration the client opens.
type Checkout struct {
	StudentID int64
	Order     Order
	Options   WidgetOptions
}

// Callback is what the client reports once the widget closes. Either
// Dismissed is set or Response carries the gateway's success payload.
type Callback struct {
	Dismissed bool
	Response  GatewayResponse
}

// Result is the end of a checkout. Confirmed is only ever true for a
// Completed outcome the payment-service accepted.
type Result struct {
	Outcome   Outcome
	Confirmed bool
}

// Widget presents the checkout to a payer and reports how it closed.
type Widget interface {
	Present(ctx context.Context, opts WidgetOptions) (Callback, error)
}

type pendingCheckout struct {
	userID    string
	studentID int64
	order     Order
	attempt   *Attempt
	startedAt time.Time
}

// Flow runs the payment handshake: order creation, widget opening, outcome
// resolution and confirmation, strictly in that order.
type Flow struct {
	orders   *OrderClient
	sessions *SessionController
	relay    *ConfirmationRelay
	logger   *zap.Logger

	now     func() time.Time
	mu      sync.Mutex
	pending map[string]*pendingCheckout
}

func NewFlow(orders *OrderClient, sessions *SessionController, relay *ConfirmationRelay, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		orders:   orders,
		sessions: sessions,
		relay:    relay,
		logger:   logger,
		now:      time.Now,
		pending:  make(map[string]*pendingCheckout),
	}
}

// Start creates an order and opens a checkout attempt for it.
func (f *Flow) Start(ctx context.Context, s Session, studentID, planID int64) (*Checkout, error) {
	order, err := f.orders.CreateOrder(ctx, s, studentID, planID)
	if err != nil {
		return nil, err
	}
	attempt, err := f.sessions.Open(ctx, OpenRequest{
		OrderID:  order.OrderID,
		Amount:   order.Amount,
		PlanName: order.PlanName,
		KeyID:    order.KeyID,

		Gateway:      order.Gateway,
		ClientSecret: order.ClientSecret,
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.pending[order.OrderID] = &pendingCheckout{
		userID:    s.UserID,
		studentID: studentID,
		order:     *order,
		attempt:   attempt,
		startedAt: f.now(),
	}
	f.mu.Unlock()

	return &Checkout{StudentID: studentID, Order: *order, Options: attempt.Options}, nil
}

// Finish resolves the checkout for orderID with cb. Only a Completed outcome
// is relayed for confirmation; a dismissal returns with nothing else done.
// A checkout started by another user is reported as unknown.
func (f *Flow) Finish(ctx context.Context, s Session, orderID string, cb Callback) (*Result, error) {
	f.mu.Lock()
	p, ok := f.pending[orderID]
	if !ok || p.userID != s.UserID {
		f.mu.Unlock()
		return nil, ErrUnknownCheckout
	}
	f.mu.Unlock()

	var err error
	if cb.Dismissed {
		err = p.attempt.Dismiss()
	} else {
		err = p.attempt.Complete(cb.Response)
	}
	if err != nil {
		return nil, err
	}
	f.forget(orderID, p)

	outcome, err := p.attempt.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if outcome.Kind == OutcomeDismissed {
		return &Result{Outcome: outcome}, nil
	}

	confirmed, err := f.relay.ConfirmPayment(ctx, s, Confirmation{
		StudentID:        p.studentID,
		PaymentID:        p.order.PaymentID,
		GatewayOrderID:   p.order.OrderID,
		GatewayPaymentID: outcome.PaymentID,
		Signature:        p.attempt.Signature(),
	})
	if err != nil {
		f.logger.Error("Checkout completed but confirmation failed",
			zap.String("order_id", orderID),
			zap.String("gateway_payment_id", outcome.PaymentID),
			zap.Error(err),
		)
	}
	return &Result{Outcome: outcome, Confirmed: confirmed}, err
}

// Run drives a whole checkout against w.
func (f *Flow) Run(ctx context.Context, s Session, studentID, planID int64, w Widget) (*Result, error) {
	co, err := f.Start(ctx, s, studentID, planID)
	if err != nil {
		return nil, err
	}
	cb, err := w.Present(ctx, co.Options)
	if err != nil {
		f.Abandon(co.Order.OrderID)
		return nil, err
	}
	return f.Finish(ctx, s, co.Order.OrderID, cb)
}

// Abandon dismisses an open checkout without a client callback.
func (f *Flow) Abandon(orderID string) {
	f.mu.Lock()
	p, ok := f.pending[orderID]
	if ok {
		delete(f.pending, orderID)
	}
	f.mu.Unlock()
	if ok {
		_ = p.attempt.Dismiss()
	}
}

// ExpireAbandoned dismisses checkouts started more than maxAge ago that never
// got a callback, and returns how many were dismissed.
func (f *Flow) ExpireAbandoned(maxAge time.Duration) int {
	cutoff := f.now().Add(-maxAge)
	var stale []*pendingCheckout

	f.mu.Lock()
	for id, p := range f.pending {
		if p.startedAt.Before(cutoff) {
			stale = append(stale, p)
			delete(f.pending, id)
		}
	}
	f.mu.Unlock()

	for _, p := range stale {
		_ = p.attempt.Dismiss()
		f.logger.Info("Abandoned checkout expired", zap.String("order_id", p.order.OrderID))
	}
	return len(stale)
}

// StartJanitor runs ExpireAbandoned every interval until ctx is cancelled.
func (f *Flow) StartJanitor(ctx context.Context, maxAge, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.ExpireAbandoned(maxAge)
			}
		}
	}()
}

// Open reports the number of checkouts awaiting a callback.
func (f *Flow) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *Flow) forget(orderID string, p *pendingCheckout) {
	f.mu.Lock()
	if cur, ok := f.pending[orderID]; ok && cur == p {
		delete(f.pending, orderID)
	}
	f.mu.Unlock()
}
