package checkout

import "errors"

var (
	// ErrScriptLoadFailed means the gateway checkout script is not available,
	// so no payment widget can be opened.
	ErrScriptLoadFailed = errors.New("payment system failed to load, please refresh the page and try again")

	// ErrRemoteUnavailable means there is no authenticated connection to the
	// payment-service. Nothing was sent.
	ErrRemoteUnavailable = errors.New("payment service is not available, please sign in and try again")

	// ErrOrderCreationFailed means the payment-service rejected or failed the
	// order request. Callers may start a new checkout.
	ErrOrderCreationFailed = errors.New("failed to create payment order")

	// ErrConfirmationFailed means the gateway reported success but the
	// payment-service did not confirm it. The payment may be taken without
	// the subscription being recorded.
	ErrConfirmationFailed = errors.New("payment received but not yet confirmed, please contact support")

	ErrAttemptResolved   = errors.New("checkout attempt already resolved")
	ErrAttemptInProgress = errors.New("checkout already open for this order")
	ErrUnknownCheckout   = errors.New("no open checkout for this order")
	ErrInvalidAmount     = errors.New("invalid checkout amount")
	ErrInvalidResponse   = errors.New("invalid gateway response")
)
