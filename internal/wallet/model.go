package wallet

import (
	"time"

	"github.com/congo-pay/tiered_ledger/internal/ledger"
)

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Amount   int64
	AsOf     time.Time
}

// Account is a wallet with its derived figures. Nothing here is stored; every
// number is folded from the wallet's entries.
type Account struct {
	Wallet         ledger.Wallet
	Balance        int64
	TotalDeposited int64
	TotalWithdrawn int64
	Entries        int
	AsOf           time.Time
}

// ProvisionInput registers a principal and opens its wallet.
type ProvisionInput struct {
	ID            string
	Kind          string
	ParentAdminID string
}
