package models

import "time"

const (
	EventPaymentOrderCreated = "payment_order_created"
	EventPaymentSucceeded    = "payment_succeeded"
	EventPaymentFailed       = "payment_failed"
)

// PaymentEvent is published on every payment order state change. Consumers
// (the BFF cache, notifications) key on StudentID.
type PaymentEvent struct {
	Type             string        `json:"type"`
	PaymentID        int64         `json:"payment_id"`
	StudentID        int64         `json:"student_id"`
	PlanID           int64         `json:"plan_id"`
	GatewayOrderID   string        `json:"order_id"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	Status           PaymentStatus `json:"status"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	Reason           string        `json:"reason,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

// NewPaymentEvent builds an event describing p's current state.
func NewPaymentEvent(eventType string, p *Payment, at time.Time) PaymentEvent {
	e := PaymentEvent{
		Type:           eventType,
		PaymentID:      p.PaymentID,
		StudentID:      p.StudentID,
		PlanID:         p.PlanID,
		GatewayOrderID: p.GatewayOrderID,
		Status:         p.Status,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Reason:         p.FailureReason,
		Timestamp:      at.UTC(),
	}
	if p.GatewayPaymentID != nil {
		e.GatewayPaymentID = *p.GatewayPaymentID
	}
	return e
}
