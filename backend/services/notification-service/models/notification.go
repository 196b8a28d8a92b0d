package models

import "time"

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent   = "sent"
	StatusFailed = "failed"

	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
)

// Contact is where receipts for a student's payments go, normally the
// parent's email and phone.
type Contact struct {
	StudentID int64     `gorm:"primaryKey;autoIncrement:false" json:"student_id"`
	Name      string    `gorm:"type:varchar(120)" json:"name"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Phone     string    `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type ContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"omitempty,e164"`
}

// NotificationLog records one delivery attempt sequence for a payment event
// on one channel.
type NotificationLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID int64     `gorm:"index" json:"student_id"`
	PaymentID int64     `gorm:"index:idx_notification_delivery" json:"payment_id"`
	Type      string    `gorm:"type:varchar(40);index:idx_notification_delivery" json:"type"`
	Channel   string    `gorm:"type:varchar(10);index:idx_notification_delivery" json:"channel"`
	Recipient string    `gorm:"type:varchar(255)" json:"recipient"`
	Status    string    `gorm:"type:varchar(10)" json:"status"`
	MessageID string    `gorm:"type:varchar(64)" json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NotificationFilter struct {
	StudentID int64
	PaymentID int64
	Status    string
	Channel   string
	Page      int
	PageSize  int
}

// PaymentEvent is the payment-service's event as it arrives on the queue.
type PaymentEvent struct {
	Type             string    `json:"type"`
	PaymentID        int64     `json:"payment_id"`
	StudentID        int64     `json:"student_id"`
	PlanID           int64     `json:"plan_id"`
	GatewayOrderID   string    `json:"order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	Status           string    `json:"status"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Reason           string    `json:"reason,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
