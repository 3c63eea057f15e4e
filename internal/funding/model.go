package funding

import (
	"time"

	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Type says which way money moves once a request is approved.
type Type string

const (
	// TypeDeposit moves money from the counterparty into the requester's wallet.
	TypeDeposit Type = "DEPOSIT"
	// TypeWithdrawal moves money from the requester's wallet to the counterparty.
	TypeWithdrawal Type = "WITHDRAWAL"
)

// Valid reports whether t is a known request type.
func (t Type) Valid() bool { return t == TypeDeposit || t == TypeWithdrawal }

// Status is the lifecycle position of a request. PENDING is the only
// non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool { return s != StatusPending }

// Request asks for money to move between a principal and the tier above it.
// The ledger is only touched when the request is approved.
type Request struct {
	ID             string
	RequesterID    string
	RequesterType  principal.Kind
	CounterpartyID string
	Type           Type
	Amount         int64
	Status         Status
	Withdrawal     *WithdrawalDetails
	ProofReference string
	Remarks        string
	// Fee is the withdrawal fee actually debited on approval.
	Fee        int64
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	RequesterID    string
	CounterpartyID string
	RequesterType  principal.Kind
	Status         Status
	Type           Type
	Limit          int
}

func (f Filter) match(r Request) bool {
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if f.CounterpartyID != "" && r.CounterpartyID != f.CounterpartyID {
		return false
	}
	if f.RequesterType != "" && r.RequesterType != f.RequesterType {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	return true
}
