package ledger

import (
	"time"

	"github.com/congo-pay/tiered_ledger/internal/money"
)

// EntryView is the API shape of an entry.
type EntryView struct {
	ID               string    `json:"id"`
	WalletID         string    `json:"wallet_id"`
	OwnerType        string    `json:"owner_type"`
	Seq              int64     `json:"seq"`
	Direction        string    `json:"direction"`
	Kind             string    `json:"kind"`
	Amount           string    `json:"amount"`
	BalanceAfter     string    `json:"balance_after"`
	Reason           string    `json:"reason"`
	RelatedRequestID string    `json:"related_request_id,omitempty"`
	ReferenceID      string    `json:"reference_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// View renders e for API responses.
func (e Entry) View() EntryView {
	return EntryView{
		ID:               e.ID,
		WalletID:         e.WalletID,
		OwnerType:        string(e.OwnerType),
		Seq:              e.Seq,
		Direction:        string(e.Direction),
		Kind:             string(e.Kind),
		Amount:           money.Format(e.Amount),
		BalanceAfter:     money.Format(e.BalanceAfter),
		Reason:           e.Reason,
		RelatedRequestID: e.RelatedRequestID,
		ReferenceID:      e.ReferenceID,
		CreatedAt:        e.CreatedAt,
	}
}

// Views renders a slice of entries.
func Views(entries []Entry) []EntryView {
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.View())
	}
	return out
}
