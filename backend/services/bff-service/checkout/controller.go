package checkout

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"

	"go.uber.org/zap"
)

const (
	merchantName   = "OpenFrame Education"
	widgetCurrency = "INR"
	minorPerMajor  = 100
)

// Readiness is satisfied by *ScriptLoader.
type Readiness interface {
	EnsureReady(ctx context.Context) bool
}

type Theme struct {
	Color string `json:"color"`
}

// WidgetOptions configures the gateway's hosted checkout widget. Amount is
// in minor units (paise).
type WidgetOptions struct {
	Key         string `json:"key"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OrderID     string `json:"order_id"`
	Theme       Theme  `json:"theme"`

	Gateway      string `json:"gateway,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// OpenRequest describes the order a widget is opened for. Amount is in major
// units. KeyID overrides the controller's default publishable key.
type OpenRequest struct {
	OrderID  string
	Amount   int64
	PlanName string
	KeyID    string

	Gateway      string
	ClientSecret string
}

// GatewayResponse is what the widget hands back on success. Razorpay sends
// the razorpay_* fields; Stripe only reports the confirmed PaymentIntent,
// which is both the order and the payment.
type GatewayResponse struct {
	PaymentID     string `json:"razorpay_payment_id" binding:"omitempty,gateway_ref"`
	OrderID       string `json:"razorpay_order_id" binding:"omitempty,gateway_ref"`
	Signature     string `json:"razorpay_signature" binding:"omitempty,hexadecimal,max=128"`
	PaymentIntent string `json:"payment_intent" binding:"omitempty,gateway_ref"`
}

func (r GatewayResponse) normalized() GatewayResponse {
	if r.PaymentID == "" && r.PaymentIntent != "" {
		r.PaymentID, r.OrderID = r.PaymentIntent, r.PaymentIntent
	}
	return r
}

type AttemptState int

const (
	AttemptNotOpened AttemptState = iota
	AttemptOpened
	AttemptCompleted
	AttemptDismissed
)

func (s AttemptState) String() string {
	switch s {
	case AttemptOpened:
		return "opened"
	case AttemptCompleted:
		return "completed"
	case AttemptDismissed:
		return "dismissed"
	default:
		return "not_opened"
	}
}

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota + 1
	OutcomeDismissed
)

// Outcome is how a checkout attempt ended. PaymentID is set only for
// OutcomeCompleted.
type Outcome struct {
	Kind      OutcomeKind
	PaymentID string
}

// Attempt is one opening of the checkout widget. It resolves exactly once,
// to either Completed or Dismissed.
type Attempt struct {
	OrderID string
	Options WidgetOptions

	mu        sync.Mutex
	state     AttemptState
	outcome   Outcome
	signature string
	done      chan struct{}
	onResolve func(*Attempt)
}

func newAttempt(opts WidgetOptions) *Attempt {
	return &Attempt{OrderID: opts.OrderID, Options: opts, done: make(chan struct{})}
}

func (a *Attempt) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Signature is the gateway signature received with a Completed outcome. It
// is kept for the server-side check and is not part of the Outcome.
func (a *Attempt) Signature() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signature
}

// Complete resolves the attempt with the widget's success response.
func (a *Attempt) Complete(resp GatewayResponse) error {
	resp = resp.normalized()
	if resp.PaymentID == "" {
		return fmt.Errorf("%w: missing payment id", ErrInvalidResponse)
	}
	if resp.OrderID != "" && resp.OrderID != a.OrderID {
		return fmt.Errorf("%w: order id mismatch", ErrInvalidResponse)
	}
	return a.resolve(AttemptCompleted, Outcome{Kind: OutcomeCompleted, PaymentID: resp.PaymentID}, resp.Signature)
}

// Dismiss resolves the attempt as closed by the user without paying.
func (a *Attempt) Dismiss() error {
	return a.resolve(AttemptDismissed, Outcome{Kind: OutcomeDismissed}, "")
}

func (a *Attempt) resolve(state AttemptState, out Outcome, signature string) error {
	a.mu.Lock()
	if a.state != AttemptOpened {
		a.mu.Unlock()
		return ErrAttemptResolved
	}
	a.state, a.outcome, a.signature = state, out, signature
	close(a.done)
	hook := a.onResolve
	a.mu.Unlock()

	if hook != nil {
		hook(a)
	}
	return nil
}

// Wait blocks until the attempt resolves or ctx ends.
func (a *Attempt) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-a.done:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// SessionController opens checkout widgets and tracks the open attempts by
// order id.
type SessionController struct {
	loader     Readiness
	keyID      string
	themeColor string
	logger     *zap.Logger
	metrics    awspkg.MetricsRecorder

	mu       sync.Mutex
	attempts map[string]*Attempt
}

func NewSessionController(loader Readiness, keyID, themeColor string, logger *zap.Logger) *SessionController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionController{
		loader:     loader,
		keyID:      keyID,
		themeColor: themeColor,
		logger:     logger,
		attempts:   make(map[string]*Attempt),
	}
}

// SetMetrics attaches a recorder for checkout outcomes. nil disables metrics.
func (s *SessionController) SetMetrics(m awspkg.MetricsRecorder) {
	s.metrics = m
}

// Open builds the widget configuration for an order and registers a new
// attempt. If the checkout script cannot be loaded no options are built and
// ErrScriptLoadFailed is returned.
func (s *SessionController) Open(ctx context.Context, req OpenRequest) (*Attempt, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrInvalidResponse)
	}
	if !s.loader.EnsureReady(ctx) {
		return nil, ErrScriptLoadFailed
	}
	minor, err := toMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	key := req.KeyID
	if key == "" {
		key = s.keyID
	}
	a := newAttempt(WidgetOptions{
		Key:         key,
		Amount:      minor,
		Currency:    widgetCurrency,
		Name:        merchantName,
		Description: "Monthly Subscription – " + req.PlanName,
		OrderID:     req.OrderID,
		Theme:       Theme{Color: s.themeColor},

		Gateway:      req.Gateway,
		ClientSecret: req.ClientSecret,
	})
	a.onResolve = s.resolved

	s.mu.Lock()
	if prev, ok := s.attempts[req.OrderID]; ok && prev.State() == AttemptOpened {
		s.mu.Unlock()
		return nil, ErrAttemptInProgress
	}
	a.state = AttemptOpened
	s.attempts[req.OrderID] = a
	s.mu.Unlock()

	s.record(awspkg.MetricCheckoutOpened)
	s.logger.Info("Checkout opened", zap.String("order_id", req.OrderID), zap.Int64("amount", minor))
	return a, nil
}

// Lookup returns the open attempt for orderID.
func (s *SessionController) Lookup(orderID string) (*Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[orderID]
	return a, ok
}

// Abandon dismisses the open attempt for orderID, if any.
func (s *SessionController) Abandon(orderID string) {
	if a, ok := s.Lookup(orderID); ok {
		_ = a.Dismiss()
	}
}

func (s *SessionController) resolved(a *Attempt) {
	s.mu.Lock()
	if cur, ok := s.attempts[a.OrderID]; ok && cur == a {
		delete(s.attempts, a.OrderID)
	}
	s.mu.Unlock()

	switch a.State() {
	case AttemptCompleted:
		s.record(awspkg.MetricCheckoutCompleted)
		s.logger.Info("Checkout completed", zap.String("order_id", a.OrderID))
	case AttemptDismissed:
		s.record(awspkg.MetricCheckoutDismissed)
		s.logger.Info("Checkout dismissed", zap.String("order_id", a.OrderID))
	}
}

func (s *SessionController) record(metric string) {
	if s.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Service": "bff-service"})
	}()
}

func toMinorUnits(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if amount > math.MaxInt64/minorPerMajor {
		return 0, fmt.Errorf("%w: %d overflows minor units", ErrInvalidAmount, amount)
	}
	return amount * minorPerMajor, nil
}
