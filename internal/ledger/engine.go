package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/events"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Engine is the transactional core on top of a Store: matched transfers,
// single-sided administrative postings, settlements and corrections.
type Engine struct {
	store     Store
	logger    *slog.Logger
	publisher events.Publisher
}

// NewEngine wires an engine to its backing store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// WithPublisher makes the engine announce administrative postings and
// settlements. It returns e for chaining.
func (e *Engine) WithPublisher(p events.Publisher) *Engine {
	e.publisher = p
	return e
}

// Store exposes the backing store for read paths.
func (e *Engine) Store() Store { return e.store }

// TransferInput moves Amount from one wallet to another. Extra legs, such as
// a withdrawal fee, are written in the same atomic unit as the pair.
type TransferInput struct {
	FromWalletID     string
	ToWalletID       string
	Amount           int64
	Kind             Kind
	Reason           string
	RelatedRequestID string
	Key              string
	Extra            []Leg
}

// TransferResult holds the matched pair written by Transfer, followed by the
// entries of any extra legs in input order.
type TransferResult struct {
	Debit  Entry
	Credit Entry
	Extra  []Entry
}

func (in TransferInput) legs() []Leg {
	legs := make([]Leg, 0, 2+len(in.Extra))
	legs = append(legs,
		Leg{WalletID: in.FromWalletID, Direction: Debit, Kind: in.Kind, Amount: in.Amount, Reason: in.Reason},
		Leg{WalletID: in.ToWalletID, Direction: Credit, Kind: in.Kind, Amount: in.Amount, Reason: in.Reason},
	)
	return append(legs, in.Extra...)
}

// Transfer debits the source and credits the destination as one unit. On any
// failure no wallet gains an entry.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if in.FromWalletID == in.ToWalletID {
		return TransferResult{}, apperr.Validationf("cannot transfer wallet %s to itself", in.FromWalletID)
	}
	if in.Amount <= 0 {
		return TransferResult{}, apperr.Validationf("amount must be positive, got %d", in.Amount)
	}
	if in.Kind == "" {
		in.Kind = KindAdjustment
	}

	entries, err := e.store.Commit(ctx, Posting{Key: in.Key, RelatedRequestID: in.RelatedRequestID, Legs: in.legs()})
	if err != nil {
		return TransferResult{}, err
	}
	e.logger.Info("ledger.transfer",
		slog.String("from_wallet_id", in.FromWalletID),
		slog.String("to_wallet_id", in.ToWalletID),
		slog.Int64("amount", in.Amount),
		slog.String("kind", string(in.Kind)),
		slog.String("key", in.Key),
		slog.String("related_request_id", in.RelatedRequestID),
		slog.Int("extra_legs", len(in.Extra)),
	)
	return TransferResult{Debit: entries[0], Credit: entries[1], Extra: entries[2:]}, nil
}

// PostInput is a single-sided posting with no counterparty.
type PostInput struct {
	WalletID    string
	Direction   Direction
	Kind        Kind
	Amount      int64
	Reason      string
	ReferenceID string
	Key         string
}

// Post writes one administrative entry: super admin minting, manual
// corrections and settlements all go through here.
func (e *Engine) Post(ctx context.Context, in PostInput) (Entry, error) {
	if in.Amount <= 0 {
		return Entry{}, apperr.Validationf("amount must be positive, got %d", in.Amount)
	}
	if in.Kind == "" {
		in.Kind = KindAdjustment
	}
	if in.Reason == "" {
		return Entry{}, apperr.Validationf("reason is required for a single-sided posting")
	}
	entry, err := Append(ctx, e.store, in.Key, Leg{
		WalletID:    in.WalletID,
		Direction:   in.Direction,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Reason:      in.Reason,
		ReferenceID: in.ReferenceID,
	})
	if err != nil {
		return Entry{}, err
	}
	e.logger.Info("ledger.post",
		slog.String("wallet_id", in.WalletID),
		slog.String("direction", string(in.Direction)),
		slog.String("kind", string(in.Kind)),
		slog.Int64("amount", in.Amount),
	)
	kind := events.KindLedgerPosted
	if in.Kind == KindSettlement {
		kind = events.KindLedgerSettled
	}
	events.Emit(ctx, e.publisher, e.logger, kind, entry.WalletID, map[string]any{
		"entry_id":      entry.ID,
		"wallet_id":     entry.WalletID,
		"direction":     string(entry.Direction),
		"kind":          string(entry.Kind),
		"amount":        entry.Amount,
		"balance_after": entry.BalanceAfter,
		"reference_id":  entry.ReferenceID,
	})
	return entry, nil
}

// SettleInput carries realized profit or loss for one closed trade. PnL is
// signed and already net of brokerage.
type SettleInput struct {
	UserID   string
	PnL      int64
	TradeRef string
}

// Settle posts a closed trade's result to a user's wallet. Each trade
// reference settles once.
func (e *Engine) Settle(ctx context.Context, in SettleInput) (Entry, error) {
	if in.TradeRef == "" {
		return Entry{}, apperr.Validationf("trade reference is required")
	}
	if in.PnL == 0 {
		return Entry{}, apperr.Validationf("settlement amount must be non-zero")
	}
	w, err := e.store.Wallet(ctx, in.UserID)
	if err != nil {
		return Entry{}, err
	}
	if w.OwnerType != principal.KindUser {
		return Entry{}, apperr.Validationf("only user wallets settle trades, %s is %s", w.ID, w.OwnerType)
	}

	dir, amount, reason := Credit, in.PnL, "trade profit"
	if in.PnL < 0 {
		dir, amount, reason = Debit, -in.PnL, "trade loss"
	}
	return e.Post(ctx, PostInput{
		WalletID:    in.UserID,
		Direction:   dir,
		Kind:        KindSettlement,
		Amount:      amount,
		Reason:      fmt.Sprintf("%s %s", reason, in.TradeRef),
		ReferenceID: in.TradeRef,
		Key:         "settlement:" + in.TradeRef,
	})
}

// Reverse compensates entryID with an equal entry in the opposite direction.
// The original stays untouched and an entry can be reversed only once.
func (e *Engine) Reverse(ctx context.Context, entryID, reason string) (Entry, error) {
	if reason == "" {
		return Entry{}, apperr.Validationf("reason is required for a reversal")
	}
	orig, err := e.store.Entry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if orig.Kind == KindReversal {
		return Entry{}, apperr.Validationf("entry %s is itself a reversal", entryID)
	}
	return e.Post(ctx, PostInput{
		WalletID:    orig.WalletID,
		Direction:   orig.Direction.Opposite(),
		Kind:        KindReversal,
		Amount:      orig.Amount,
		Reason:      reason,
		ReferenceID: orig.ID,
		Key:         "reversal:" + orig.ID,
	})
}

// Balance returns the current balance of a wallet.
func (e *Engine) Balance(ctx context.Context, walletID string) (int64, error) {
	return e.store.Balance(ctx, walletID)
}

// Posted reports whether a posting with key was committed.
func (e *Engine) Posted(ctx context.Context, key string) (bool, error) {
	return e.store.Posted(ctx, key)
}

// Verification is the result of re-folding one wallet's entry chain.
type Verification struct {
	WalletID    string
	Entries     int
	Balance     int64
	Folded      int64
	Consistent  bool
	BrokenAtSeq int64
	Problem     string
}

// ErrChainBroken marks a wallet whose stored checkpoints disagree with its entries.
var ErrChainBroken = errors.New("ledger chain broken")

// Verify recomputes a wallet's balance from its entries and checks every
// stored balanceAfter and sequence number along the way. The reported
// Balance is the head entry's balanceAfter, which is what Store.Balance
// returns, taken from the same read as the chain so concurrent commits cannot
// make a healthy wallet look broken.
func (e *Engine) Verify(ctx context.Context, walletID string) (Verification, error) {
	entries, err := e.store.Entries(ctx, walletID, EntryFilter{})
	if err != nil {
		return Verification{}, err
	}
	var balance int64
	if n := len(entries); n > 0 {
		balance = entries[n-1].BalanceAfter
	}

	v := Verification{WalletID: walletID, Entries: len(entries), Balance: balance, Consistent: true}
	var running int64
	for i, entry := range entries {
		running += entry.Signed()
		switch {
		case entry.Seq != int64(i+1):
			v.Problem = fmt.Sprintf("expected seq %d, found %d", i+1, entry.Seq)
		case entry.Amount <= 0:
			v.Problem = fmt.Sprintf("non-positive amount %d", entry.Amount)
		case entry.BalanceAfter != running:
			v.Problem = fmt.Sprintf("balance_after %d, folded %d", entry.BalanceAfter, running)
		case running < 0:
			v.Problem = fmt.Sprintf("negative balance %d", running)
		}
		if v.Problem != "" {
			v.Consistent = false
			v.BrokenAtSeq = entry.Seq
			break
		}
	}
	v.Folded = running
	if v.Consistent && running != balance {
		v.Consistent = false
		v.Problem = fmt.Sprintf("current balance %d, folded %d", balance, running)
	}
	if !v.Consistent {
		e.logger.Error("ledger.verify failed", slog.String("wallet_id", walletID), slog.String("problem", v.Problem))
		return v, fmt.Errorf("wallet %s: %s: %w", walletID, v.Problem, ErrChainBroken)
	}
	return v, nil
}
