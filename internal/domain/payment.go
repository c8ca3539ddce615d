package domain

import "time"

// PaymentClaim binds a verified payment reference to the session that
// started the checkout.
type PaymentClaim struct {
	Reference string
	SessionID string
	Amount    int64
	Currency  string
	ClaimedAt time.Time
}
