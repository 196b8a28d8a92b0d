package models

import (
	"sync/atomic"
	"time"

	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

const CurrencyINR = "INR"

// Payment is one payment order for a student's plan subscription. Amount is
// in the minor currency unit (paise). GatewayOrderID is written on insert
// only; gorm never includes it in updates.
type Payment struct {
	PaymentID        int64          `gorm:"primaryKey;autoIncrement:false" json:"payment_id"`
	StudentID        int64          `gorm:"index;not null" json:"student_id"`
	PlanID           int64          `gorm:"not null" json:"plan_id"`
	Gateway          string         `gorm:"type:varchar(20);not null" json:"gateway"`
	GatewayOrderID   string         `gorm:"<-:create;type:varchar(64);uniqueIndex;not null" json:"order_id"`
	GatewayPaymentID *string        `gorm:"type:varchar(64);uniqueIndex" json:"gateway_payment_id,omitempty"`
	Amount           int64          `gorm:"not null" json:"amount"`
	Currency         string         `gorm:"type:varchar(10);not null" json:"currency"`
	Status           PaymentStatus  `gorm:"type:varchar(20);index;not null" json:"status"`
	FailureReason    string         `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
	FailedAt         *time.Time     `json:"failed_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

var lastPaymentID atomic.Int64

// NewPaymentID returns a timestamp-derived id (microseconds since the epoch),
// bumped when needed so ids are strictly increasing within the process.
func NewPaymentID(now time.Time) int64 {
	candidate := now.UnixMicro()
	for {
		last := lastPaymentID.Load()
		next := candidate
		if next <= last {
			next = last + 1
		}
		if lastPaymentID.CompareAndSwap(last, next) {
			return next
		}
	}
}

// CreateOrderRequest is the body of POST /payments/orders.
type CreateOrderRequest struct {
	StudentID int64 `json:"student_id" binding:"required,min=1"`
	PlanID    int64 `json:"plan_id" binding:"required,min=1"`
}

// OrderResponse is returned to the caller that opens the checkout widget.
// Amount is in major units; the widget converts it.
type OrderResponse struct {
	OrderID   string `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PlanName  string `json:"plan_name"`
	Gateway   string `json:"gateway"`
	KeyID     string `json:"key_id,omitempty"`
	// ClientSecret is set for gateways whose widget needs one.
	ClientSecret string `json:"client_secret,omitempty"`
}

// ConfirmPaymentRequest is the body of POST /payments/confirm. Signature is
// optional; when present it is verified before the gateway lookup.
type ConfirmPaymentRequest struct {
	PaymentID        int64  `json:"payment_id" binding:"required,min=1"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required,gateway_ref"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty" binding:"omitempty,gateway_ref"`
	Signature        string `json:"signature,omitempty" binding:"omitempty,hexadecimal,max=128"`
}

// CreatePaymentRequest is the admin body of POST /payments for recording an
// offline payment.
type CreatePaymentRequest struct {
	StudentID int64         `json:"student_id" binding:"required,min=1"`
	PlanID    int64         `json:"plan_id" binding:"required,min=1"`
	Amount    int64         `json:"amount" binding:"required,min=1"`
	Status    PaymentStatus `json:"status" binding:"omitempty,oneof=Pending Paid Failed"`
	Reference string        `json:"reference" binding:"required"`
}
