package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Direction is the side of a ledger entry.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// Valid reports whether d is one of the two directions.
func (d Direction) Valid() bool { return d == Credit || d == Debit }

// Opposite flips a direction; used by compensating entries.
func (d Direction) Opposite() Direction {
	if d == Credit {
		return Debit
	}
	return Credit
}

// Kind classifies why an entry exists.
type Kind string

const (
	KindDeposit       Kind = "deposit"
	KindWithdrawal    Kind = "withdrawal"
	KindWithdrawalFee Kind = "withdrawal_fee"
	KindSettlement    Kind = "settlement"
	KindAdjustment    Kind = "adjustment"
	KindReversal      Kind = "reversal"
)

// Wallet is the money pool of exactly one principal. Its balance is never
// stored on the row; it is the balanceAfter of the newest entry.
type Wallet struct {
	ID            string
	OwnerType     principal.Kind
	ParentAdminID string
	CreatedAt     time.Time
}

// Principal rebuilds the owning principal from the wallet row.
func (w Wallet) Principal() (principal.Principal, error) {
	return principal.New(w.ID, w.OwnerType, w.ParentAdminID)
}

// Entry is an immutable balance change. Seq increases by one per wallet and
// BalanceAfter is fixed at write time.
type Entry struct {
	ID               string
	WalletID         string
	OwnerType        principal.Kind
	Seq              int64
	Direction        Direction
	Kind             Kind
	Amount           int64
	Reason           string
	RelatedRequestID string
	ReferenceID      string
	BalanceAfter     int64
	CreatedAt        time.Time
}

// Signed returns the amount with the sign of its direction.
func (e Entry) Signed() int64 {
	if e.Direction == Debit {
		return -e.Amount
	}
	return e.Amount
}

// Leg is one side of a posting before it is written.
type Leg struct {
	WalletID    string
	Direction   Direction
	Kind        Kind
	Amount      int64
	Reason      string
	ReferenceID string
}

// Posting is the unit of atomicity: every leg is written or none is. A
// non-empty Key makes the posting idempotent; reusing it fails with
// apperr.ErrDuplicate.
type Posting struct {
	Key              string
	RelatedRequestID string
	Legs             []Leg
}

// WalletFilter narrows ListWallets. Zero values match everything.
type WalletFilter struct {
	OwnerType     principal.Kind
	ParentAdminID string
}

// EntryFilter bounds a statement read. Limit <= 0 means unlimited.
type EntryFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

func (f EntryFilter) match(e Entry) bool {
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// Store is the append-only wallet and entry storage implemented by the
// in-memory and Postgres backends. Writes to one wallet are serialized.
type Store interface {
	OpenWallet(ctx context.Context, wallet Wallet) error
	Wallet(ctx context.Context, id string) (Wallet, error)
	ListWallets(ctx context.Context, filter WalletFilter) ([]Wallet, error)
	Balance(ctx context.Context, walletID string) (int64, error)
	Entries(ctx context.Context, walletID string, filter EntryFilter) ([]Entry, error)
	Entry(ctx context.Context, entryID string) (Entry, error)
	Commit(ctx context.Context, posting Posting) ([]Entry, error)
	// Posted reports whether a posting with this key was committed.
	Posted(ctx context.Context, key string) (bool, error)
}

// Append writes a single entry to one wallet under an optional posting key.
func Append(ctx context.Context, s Store, key string, leg Leg) (Entry, error) {
	entries, err := s.Commit(ctx, Posting{Key: key, Legs: []Leg{leg}})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

func validatePosting(p Posting) error {
	if len(p.Legs) == 0 {
		return apperr.Validationf("posting has no legs")
	}
	for i, leg := range p.Legs {
		if leg.WalletID == "" {
			return apperr.Validationf("leg %d: wallet id is required", i)
		}
		if !leg.Direction.Valid() {
			return apperr.Validationf("leg %d: invalid direction %q", i, leg.Direction)
		}
		if leg.Amount <= 0 {
			return apperr.Validationf("leg %d: amount must be positive, got %d", i, leg.Amount)
		}
		if leg.Kind == "" {
			return apperr.Validationf("leg %d: kind is required", i)
		}
	}
	return nil
}

// head is the newest known state of one wallet while a posting is planned.
type head struct {
	ownerType principal.Kind
	seq       int64
	balance   int64
}

// plan turns legs into entries against the wallet heads, advancing them as it
// goes. It fails without side effects if any leg would go negative.
func plan(posting Posting, heads map[string]*head, now time.Time) ([]Entry, error) {
	entries := make([]Entry, 0, len(posting.Legs))
	for _, leg := range posting.Legs {
		h := heads[leg.WalletID]
		next := h.balance + leg.Amount
		if leg.Direction == Debit {
			next = h.balance - leg.Amount
		}
		if next < 0 {
			return nil, fmt.Errorf("wallet %s needs %d, has %d: %w", leg.WalletID, leg.Amount, h.balance, apperr.ErrInsufficientFunds)
		}
		h.balance = next
		h.seq++
		entries = append(entries, Entry{
			ID:               uuid.NewString(),
			WalletID:         leg.WalletID,
			OwnerType:        h.ownerType,
			Seq:              h.seq,
			Direction:        leg.Direction,
			Kind:             leg.Kind,
			Amount:           leg.Amount,
			Reason:           leg.Reason,
			RelatedRequestID: posting.RelatedRequestID,
			ReferenceID:      leg.ReferenceID,
			BalanceAfter:     next,
			CreatedAt:        now,
		})
	}
	return entries, nil
}

// Totals is a fold over a wallet's entries.
type Totals struct {
	Balance   int64
	Deposited int64
	Withdrawn int64
	Entries   int
}

// Fold derives balance and lifetime deposit/withdrawal totals from entries in
// creation order.
func Fold(entries []Entry) Totals {
	var t Totals
	for _, e := range entries {
		t.Balance += e.Signed()
		t.Entries++
		switch {
		case e.Kind == KindDeposit && e.Direction == Credit:
			t.Deposited += e.Amount
		case e.Kind == KindWithdrawal && e.Direction == Debit:
			t.Withdrawn += e.Amount
		}
	}
	return t
}
