package model

import "time"

// Caller is the authenticated principal an operation runs on behalf of.
// It is produced by the upstream auth layer; this service only consumes it.
type Caller struct {
	ID      string
	IsAdmin bool
}

// Balance is a user's credit record as stored.
type Balance struct {
	UserID      string    `json:"user_id"`
	Credits     int64     `json:"credits"`
	LastUpdated time.Time `json:"last_updated"`
}

type GetCreditsRequest struct {
	// UserID is optional; when empty the caller's own balance is returned.
	UserID string `json:"user_id,omitempty"`
}

type GetCreditsResult struct {
	UserID      string    `json:"user_id"`
	Credits     int64     `json:"credits"`
	LastUpdated time.Time `json:"last_updated"`
}

type ConsumeRequest struct {
	UserID    string `json:"user_id,omitempty"`
	Amount    int64  `json:"amount"`
	Operation string `json:"operation"`
}

type ConsumeResult struct {
	UserID           string `json:"user_id"`
	CreditsRemaining int64  `json:"credits_remaining"`
	CreditsConsumed  int64  `json:"credits_consumed"`
	Operation        string `json:"operation"`
}

type GrantRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type GrantResult struct {
	UserID         string `json:"user_id"`
	Credits        int64  `json:"credits"`
	CreditsGranted int64  `json:"credits_granted"`
}

// CreditEvent is published on the bus after a balance change commits and is
// persisted asynchronously by the worker as an audit trail. Change is signed:
// negative for consumption, positive for grants.
type CreditEvent struct {
	UserID        string    `json:"user_id"`
	Change        int64     `json:"change"`
	Operation     string    `json:"operation"`
	BalanceAfter  int64     `json:"balance_after"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}
