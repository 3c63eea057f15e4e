package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/logging"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

func newEngine(t *testing.T) (*Engine, Store) {
	t.Helper()
	s := NewInMemory()
	return NewEngine(s, logging.Discard()), s
}

func TestEngine_TransferMaintainsBalance(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:a", "wallet:b")
	SeedBalance(s, "wallet:a", 10_000)

	res, err := e.Transfer(ctx, TransferInput{FromWalletID: "wallet:a", ToWalletID: "wallet:b", Amount: 1_500, Kind: KindDeposit, RelatedRequestID: "req-1"})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if res.Debit.BalanceAfter != 8_500 {
		t.Fatalf("expected from balance 8500, got %d", res.Debit.BalanceAfter)
	}
	if res.Credit.BalanceAfter != 1_500 {
		t.Fatalf("expected to balance 1500, got %d", res.Credit.BalanceAfter)
	}
	if res.Debit.RelatedRequestID != "req-1" || res.Credit.RelatedRequestID != "req-1" {
		t.Fatal("both legs must share the related request id")
	}
	if res.Debit.Direction != Debit || res.Credit.Direction != Credit {
		t.Fatal("legs must have opposite directions")
	}
	if res.Debit.Signed()+res.Credit.Signed() != 0 {
		t.Fatal("transfer must net to zero")
	}

	a, _ := s.Balance(ctx, "wallet:a")
	b, _ := s.Balance(ctx, "wallet:b")
	if a+b != 10_000 {
		t.Fatalf("ledger not balanced, total=%d", a+b)
	}
}

func TestEngine_TransferInsufficientFundsIsAllOrNothing(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:a", "wallet:b")
	SeedBalance(s, "wallet:a", 100)

	_, err := e.Transfer(ctx, TransferInput{FromWalletID: "wallet:a", ToWalletID: "wallet:b", Amount: 101})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	aEntries, _ := s.Entries(ctx, "wallet:a", EntryFilter{})
	bEntries, _ := s.Entries(ctx, "wallet:b", EntryFilter{})
	if len(aEntries) != 1 || len(bEntries) != 0 {
		t.Fatalf("entry counts changed: a=%d b=%d", len(aEntries), len(bEntries))
	}
}

func TestEngine_TransferToUnknownWalletWritesNothing(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:a")
	SeedBalance(s, "wallet:a", 100)

	_, err := e.Transfer(ctx, TransferInput{FromWalletID: "wallet:a", ToWalletID: "ghost", Amount: 50})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	bal, _ := s.Balance(ctx, "wallet:a")
	if bal != 100 {
		t.Fatalf("debit survived failed transfer, balance=%d", bal)
	}
}

func TestEngine_TransferValidation(t *testing.T) {
	e, s := newEngine(t)
	openWallets(t, s, "wallet:a", "wallet:b")
	ctx := context.Background()
	if _, err := e.Transfer(ctx, TransferInput{FromWalletID: "wallet:a", ToWalletID: "wallet:a", Amount: 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for self transfer, got %v", err)
	}
	if _, err := e.Transfer(ctx, TransferInput{FromWalletID: "wallet:a", ToWalletID: "wallet:b", Amount: 0}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestEngine_ConcurrentOpposingTransfers(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:a", "wallet:b")
	SeedBalance(s, "wallet:a", 100_000)
	SeedBalance(s, "wallet:b", 100_000)

	const workers = 20
	var wg sync.WaitGroup
	done := make(chan struct{})
	go func() {
		for i := 0; i < workers; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := e.Transfer(ctx, TransferInput{FromWalletID: "wallet:a", ToWalletID: "wallet:b", Amount: 500}); err != nil {
					t.Errorf("a->b: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				if _, err := e.Transfer(ctx, TransferInput{FromWalletID: "wallet:b", ToWalletID: "wallet:a", Amount: 300}); err != nil {
					t.Errorf("b->a: %v", err)
				}
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposing transfers deadlocked")
	}

	a, _ := s.Balance(ctx, "wallet:a")
	b, _ := s.Balance(ctx, "wallet:b")
	if a+b != 200_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", a+b)
	}
	if a != 100_000-workers*200 {
		t.Fatalf("unexpected balance a=%d", a)
	}
	for _, id := range []string{"wallet:a", "wallet:b"} {
		if _, err := e.Verify(ctx, id); err != nil {
			t.Fatalf("verify %s: %v", id, err)
		}
	}
}

func TestEngine_PostRequiresReason(t *testing.T) {
	e, s := newEngine(t)
	openWallets(t, s, "root")
	_, err := e.Post(context.Background(), PostInput{WalletID: "root", Direction: Credit, Amount: 10})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	entry, err := e.Post(context.Background(), PostInput{WalletID: "root", Direction: Credit, Amount: 10, Reason: "mint"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if entry.Kind != KindAdjustment || entry.BalanceAfter != 10 {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestEngine_Settle(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	if err := s.OpenWallet(ctx, Wallet{ID: "u1", OwnerType: principal.KindUser, ParentAdminID: "a1"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	openWallets(t, s, "a1")

	profit, err := e.Settle(ctx, SettleInput{UserID: "u1", PnL: 700, TradeRef: "T-1"})
	if err != nil {
		t.Fatalf("settle profit: %v", err)
	}
	if profit.Direction != Credit || profit.Kind != KindSettlement || profit.ReferenceID != "T-1" {
		t.Fatalf("unexpected profit entry %+v", profit)
	}
	loss, err := e.Settle(ctx, SettleInput{UserID: "u1", PnL: -200, TradeRef: "T-2"})
	if err != nil {
		t.Fatalf("settle loss: %v", err)
	}
	if loss.Direction != Debit || loss.BalanceAfter != 500 {
		t.Fatalf("unexpected loss entry %+v", loss)
	}
	if _, err := e.Settle(ctx, SettleInput{UserID: "u1", PnL: 700, TradeRef: "T-1"}); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected duplicate settlement, got %v", err)
	}
	if _, err := e.Settle(ctx, SettleInput{UserID: "a1", PnL: 1, TradeRef: "T-3"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected admin settlement rejected, got %v", err)
	}
	if _, err := e.Settle(ctx, SettleInput{UserID: "u1", PnL: -10_000, TradeRef: "T-4"}); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestEngine_ReverseOnce(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "root")
	orig, _ := e.Post(ctx, PostInput{WalletID: "root", Direction: Credit, Amount: 900, Reason: "mint"})

	rev, err := e.Reverse(ctx, orig.ID, "minted twice by mistake")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if rev.Direction != Debit || rev.Amount != 900 || rev.ReferenceID != orig.ID || rev.BalanceAfter != 0 {
		t.Fatalf("unexpected reversal %+v", rev)
	}
	if _, err := e.Reverse(ctx, orig.ID, "again"); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected duplicate reversal, got %v", err)
	}
	if _, err := e.Reverse(ctx, rev.ID, "undo undo"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected reversal of reversal rejected, got %v", err)
	}
	still, _ := s.Entry(ctx, orig.ID)
	if still != orig {
		t.Fatal("original entry must be immutable")
	}
}

func TestEngine_VerifyBalanceEqualsFold(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:a", "wallet:b")
	SeedBalance(s, "wallet:a", 5_000)
	for i := 0; i < 25; i++ {
		from, to := "wallet:a", "wallet:b"
		if i%3 == 0 {
			from, to = to, from
		}
		_, _ = e.Transfer(ctx, TransferInput{FromWalletID: from, ToWalletID: to, Amount: int64(10 * (i + 1)), Key: fmt.Sprintf("k-%d", i)})
	}
	for _, id := range []string{"wallet:a", "wallet:b"} {
		v, err := e.Verify(ctx, id)
		if err != nil {
			t.Fatalf("verify %s: %v", id, err)
		}
		entries, _ := s.Entries(ctx, id, EntryFilter{})
		if v.Balance != sumSigned(entries) || !v.Consistent {
			t.Fatalf("wallet %s: balance %d, folded %d", id, v.Balance, sumSigned(entries))
		}
	}
}

func TestEngine_VerifyDetectsTamperedCheckpoint(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:a")
	SeedBalance(s, "wallet:a", 100)
	SeedBalance(s, "wallet:a", 50)

	mem := s.(*inMemoryStore)
	mem.mu.Lock()
	mem.entries["wallet:a"][0].BalanceAfter = 99
	mem.mu.Unlock()

	v, err := e.Verify(ctx, "wallet:a")
	if !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected broken chain, got %v", err)
	}
	if v.BrokenAtSeq != 1 {
		t.Fatalf("expected break at seq 1, got %d", v.BrokenAtSeq)
	}
}

func TestEngine_VerifyDuringConcurrentCommits(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2_000; i++ {
			SeedBalance(s, "wallet:a", 1)
		}
	}()

	for {
		select {
		case <-done:
			if _, err := e.Verify(ctx, "wallet:a"); err != nil {
				t.Fatalf("verify after writes: %v", err)
			}
			return
		default:
		}
		if v, err := e.Verify(ctx, "wallet:a"); err != nil {
			t.Fatalf("verify under load reported %q: %v", v.Problem, err)
		}
	}
}

func TestEngine_TransferWithExtraLegs(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	openWallets(t, s, "wallet:user", "wallet:admin")
	SeedBalance(s, "wallet:user", 1_000)

	fee := Leg{WalletID: "wallet:user", Direction: Debit, Kind: KindWithdrawalFee, Amount: 50, Reason: "fee"}
	_, err := e.Transfer(ctx, TransferInput{
		FromWalletID: "wallet:user", ToWalletID: "wallet:admin", Amount: 960,
		Kind: KindWithdrawal, Key: "w-1", Extra: []Leg{fee},
	})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected the fee leg to fail the whole unit, got %v", err)
	}
	if entries, _ := s.Entries(ctx, "wallet:admin", EntryFilter{}); len(entries) != 0 {
		t.Fatalf("failed unit wrote %d admin entries", len(entries))
	}

	res, err := e.Transfer(ctx, TransferInput{
		FromWalletID: "wallet:user", ToWalletID: "wallet:admin", Amount: 900,
		Kind: KindWithdrawal, Key: "w-1", Extra: []Leg{fee},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(res.Extra) != 1 || res.Extra[0].Kind != KindWithdrawalFee || res.Extra[0].BalanceAfter != 50 {
		t.Fatalf("unexpected fee entry %+v", res.Extra)
	}
	if res.Debit.BalanceAfter != 100 || res.Credit.BalanceAfter != 900 {
		t.Fatalf("unexpected pair %+v / %+v", res.Debit, res.Credit)
	}
	posted, err := e.Posted(ctx, "w-1")
	if err != nil || !posted {
		t.Fatalf("expected key w-1 recorded, got %v %v", posted, err)
	}
}
