package ledger

import (
	"context"

	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// SeedBalance is a test helper that opens walletID if needed and credits it
// with an adjustment entry, so seeded funds still show up in the entry chain.
func SeedBalance(s Store, walletID string, amount int64) {
	ctx := context.Background()
	if _, err := s.Wallet(ctx, walletID); err != nil {
		_ = s.OpenWallet(ctx, Wallet{ID: walletID, OwnerType: principal.KindAdmin})
	}
	if amount <= 0 {
		return
	}
	_, _ = Append(ctx, s, "", Leg{WalletID: walletID, Direction: Credit, Kind: KindAdjustment, Amount: amount, Reason: "seed"})
}
