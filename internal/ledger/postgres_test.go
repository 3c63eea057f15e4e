package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/infra"
	"github.com/congo-pay/tiered_ledger/internal/logging"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// postgresPool connects to DATABASE_URL, applies the migrations and returns a
// pool capped at maxConns. Tests using it are skipped without a database.
func postgresPool(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := infra.Migrate(url, logging.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := infra.NewPostgresPool(context.Background(), infra.PostgresOptions{URL: url, MaxConns: maxConns})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// pgWallets opens admin wallets with ids unique to this run; entries are
// append-only so nothing is cleaned up afterwards.
func pgWallets(t *testing.T, s Store, n int) []string {
	t.Helper()
	prefix := "pg-" + uuid.NewString()[:8] + "-"
	ids := make([]string, n)
	for i := range ids {
		ids[i] = prefix + string(rune('a'+i))
		if err := s.OpenWallet(context.Background(), Wallet{ID: ids[i], OwnerType: principal.KindAdmin}); err != nil {
			t.Fatalf("open wallet %s: %v", ids[i], err)
		}
	}
	return ids
}

func TestPostgresStore_CommitAndRead(t *testing.T) {
	s := NewPostgresStore(postgresPool(t, 4))
	e := NewEngine(s, logging.Discard())
	ctx := context.Background()
	ids := pgWallets(t, s, 2)
	a, b := ids[0], ids[1]

	if err := s.OpenWallet(ctx, Wallet{ID: a, OwnerType: principal.KindAdmin}); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected duplicate wallet, got %v", err)
	}
	SeedBalance(s, a, 1_000)

	key := "pg-transfer-" + a
	res, err := e.Transfer(ctx, TransferInput{FromWalletID: a, ToWalletID: b, Amount: 400, Kind: KindDeposit, Key: key, RelatedRequestID: "req-" + a})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Debit.Seq != 2 || res.Debit.BalanceAfter != 600 || res.Credit.Seq != 1 || res.Credit.BalanceAfter != 400 {
		t.Fatalf("unexpected pair %+v / %+v", res.Debit, res.Credit)
	}
	if _, err := e.Transfer(ctx, TransferInput{FromWalletID: a, ToWalletID: b, Amount: 1, Key: key}); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected duplicate posting key, got %v", err)
	}

	shortKey := "pg-short-" + a
	if _, err := e.Transfer(ctx, TransferInput{FromWalletID: a, ToWalletID: b, Amount: 601, Key: shortKey}); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if posted, err := s.Posted(ctx, shortKey); err != nil || posted {
		t.Fatalf("a failed posting must not consume its key: %v %v", posted, err)
	}

	got, err := s.Entry(ctx, res.Credit.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if got.RelatedRequestID != "req-"+a || got.WalletID != b {
		t.Fatalf("unexpected entry %+v", got)
	}
	for id, want := range map[string]int64{a: 600, b: 400} {
		if bal, _ := s.Balance(ctx, id); bal != want {
			t.Fatalf("wallet %s: expected %d, got %d", id, want, bal)
		}
		if _, err := e.Verify(ctx, id); err != nil {
			t.Fatalf("verify %s: %v", id, err)
		}
	}
}

func TestPostgresStore_ConcurrentOpposingTransfers(t *testing.T) {
	s := NewPostgresStore(postgresPool(t, 8))
	e := NewEngine(s, logging.Discard())
	ctx := context.Background()
	ids := pgWallets(t, s, 2)
	SeedBalance(s, ids[0], 10_000)
	SeedBalance(s, ids[1], 10_000)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		from, to := ids[0], ids[1]
		if i%2 == 1 {
			from, to = to, from
		}
		wg.Add(1)
		go func(from, to string) {
			defer wg.Done()
			if _, err := e.Transfer(ctx, TransferInput{FromWalletID: from, ToWalletID: to, Amount: 100}); err != nil {
				errs <- err
			}
		}(from, to)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("transfer failed under contention: %v", err)
	}

	var total int64
	for _, id := range ids {
		v, err := e.Verify(ctx, id)
		if err != nil {
			t.Fatalf("verify %s: %v", id, err)
		}
		total += v.Balance
	}
	if total != 20_000 {
		t.Fatalf("money was created or lost: total %d", total)
	}
}

func TestPostgresStore_WithTxSharesCallerConnection(t *testing.T) {
	pool := postgresPool(t, 1)
	s := NewPostgresStore(pool)
	e := NewEngine(s, logging.Discard())
	ids := pgWallets(t, s, 2)
	SeedBalance(s, ids[0], 500)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// The pool has one connection and tx holds it: every call below must
	// run on tx or it would block until the deadline.
	txCtx := WithTx(ctx, tx)
	if _, err := s.Wallet(txCtx, ids[0]); err != nil {
		t.Fatalf("wallet on tx: %v", err)
	}
	key := "pg-tx-" + ids[0]
	if _, err := e.Transfer(txCtx, TransferInput{FromWalletID: ids[0], ToWalletID: ids[1], Amount: 200, Key: key}); err != nil {
		t.Fatalf("transfer on tx: %v", err)
	}
	if bal, _ := s.Balance(txCtx, ids[1]); bal != 200 {
		t.Fatalf("expected 200 inside tx, got %d", bal)
	}
	if _, err := e.Transfer(txCtx, TransferInput{FromWalletID: ids[0], ToWalletID: ids[1], Amount: 301}); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	// The failed savepoint leaves the outer transaction usable.
	if bal, err := s.Balance(txCtx, ids[0]); err != nil || bal != 300 {
		t.Fatalf("expected 300 after failed savepoint, got %d %v", bal, err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if bal, _ := s.Balance(ctx, ids[1]); bal != 0 {
		t.Fatalf("rolled back transfer is visible: %d", bal)
	}
	if posted, _ := s.Posted(ctx, key); posted {
		t.Fatal("rolled back posting key is still recorded")
	}
}
