package models

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPaymentID_StrictlyIncreasingForSameInstant(t *testing.T) {
	now := time.Now()
	a := NewPaymentID(now)
	b := NewPaymentID(now)
	c := NewPaymentID(now.Add(-time.Hour))

	assert.Greater(t, b, a)
	assert.Greater(t, c, b)
}

func TestNewPaymentID_UniqueUnderConcurrency(t *testing.T) {
	const n = 200
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	now := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewPaymentID(now)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	assert.False(t, PaymentStatusPending.IsTerminal())
	assert.True(t, PaymentStatusPaid.IsTerminal())
	assert.True(t, PaymentStatusFailed.IsTerminal())
}

func TestNewPaymentEvent(t *testing.T) {
	gpid := "pay_xyz789"
	p := &Payment{
		PaymentID: 7, StudentID: 1, PlanID: 2, GatewayOrderID: "order_abc123",
		GatewayPaymentID: &gpid, Amount: 39900, Currency: CurrencyINR, Status: PaymentStatusPaid,
	}
	e := NewPaymentEvent(EventPaymentSucceeded, p, time.Now())
	assert.Equal(t, "pay_xyz789", e.GatewayPaymentID)
	assert.Equal(t, int64(39900), e.Amount)
	assert.Equal(t, PaymentStatusPaid, e.Status)
}
