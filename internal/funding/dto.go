package funding

import (
	"time"

	"github.com/congo-pay/tiered_ledger/internal/money"
)

// CreateRequest is the body of a new fund request. Amount is a decimal string
// in rupees, e.g. "5000.00".
type CreateRequest struct {
	Type           string             `json:"type" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	Amount         string             `json:"amount" validate:"required"`
	Withdrawal     *WithdrawalDetails `json:"withdrawal,omitempty" validate:"-"`
	ProofReference string             `json:"proof_reference" validate:"max=256"`
	Remarks        string             `json:"remarks" validate:"max=500"`
}

// ResolveRequest carries optional remarks for a rejection.
type ResolveRequest struct {
	Remarks string `json:"remarks" validate:"max=500"`
}

// RequestResponse is the API view of a fund request.
type RequestResponse struct {
	ID             string             `json:"id"`
	RequesterID    string             `json:"requester_id"`
	RequesterType  string             `json:"requester_type"`
	CounterpartyID string             `json:"counterparty_id"`
	Type           string             `json:"type"`
	Amount         string             `json:"amount"`
	AmountMinor    int64              `json:"amount_minor"`
	Fee            string             `json:"fee,omitempty"`
	Status         string             `json:"status"`
	Withdrawal     *WithdrawalDetails `json:"withdrawal,omitempty"`
	ProofReference string             `json:"proof_reference,omitempty"`
	Remarks        string             `json:"remarks,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy     string             `json:"resolved_by,omitempty"`
}

func toResponse(r Request) RequestResponse {
	resp := RequestResponse{
		ID:             r.ID,
		RequesterID:    r.RequesterID,
		RequesterType:  string(r.RequesterType),
		CounterpartyID: r.CounterpartyID,
		Type:           string(r.Type),
		Amount:         money.Format(r.Amount),
		AmountMinor:    r.Amount,
		Status:         string(r.Status),
		Withdrawal:     r.Withdrawal,
		ProofReference: r.ProofReference,
		Remarks:        r.Remarks,
		CreatedAt:      r.CreatedAt,
		ResolvedAt:     r.ResolvedAt,
		ResolvedBy:     r.ResolvedBy,
	}
	if r.Fee > 0 {
		resp.Fee = money.Format(r.Fee)
	}
	return resp
}

func toResponses(rs []Request) []RequestResponse {
	out := make([]RequestResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toResponse(r))
	}
	return out
}
