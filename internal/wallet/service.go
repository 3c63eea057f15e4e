package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Service owns the principal hierarchy. Every principal has exactly one
// wallet whose id is the principal id.
type Service struct {
	engine *ledger.Engine
	logger *slog.Logger

	mu   sync.Mutex
	root string
}

// NewService builds a wallet service on top of the ledger engine.
func NewService(engine *ledger.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger}
}

// Provision registers a principal and opens its empty wallet. There is at most
// one super admin, and a user's parent must be an existing admin.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (ledger.Wallet, error) {
	kind, err := principal.ParseKind(in.Kind)
	if err != nil {
		return ledger.Wallet{}, err
	}
	p, err := principal.New(strings.TrimSpace(in.ID), kind, strings.TrimSpace(in.ParentAdminID))
	if err != nil {
		return ledger.Wallet{}, err
	}

	store := s.engine.Store()
	switch p.Kind {
	case principal.KindUser:
		parent, err := store.Wallet(ctx, p.ParentAdminID)
		if err != nil {
			return ledger.Wallet{}, err
		}
		if parent.OwnerType != principal.KindAdmin {
			return ledger.Wallet{}, apperr.Validationf("parent %s is %s, users belong to an admin", parent.ID, parent.OwnerType)
		}
	case principal.KindSuperAdmin:
		s.mu.Lock()
		defer s.mu.Unlock()
		existing, err := store.ListWallets(ctx, ledger.WalletFilter{OwnerType: principal.KindSuperAdmin})
		if err != nil {
			return ledger.Wallet{}, err
		}
		if len(existing) > 0 {
			return ledger.Wallet{}, fmt.Errorf("super admin %s: %w", existing[0].ID, apperr.ErrDuplicate)
		}
	}

	w := ledger.Wallet{ID: p.ID, OwnerType: p.Kind, ParentAdminID: p.ParentAdminID, CreatedAt: time.Now().UTC()}
	if err := store.OpenWallet(ctx, w); err != nil {
		return ledger.Wallet{}, err
	}
	s.logger.Info("wallet.provisioned",
		slog.String("wallet_id", w.ID),
		slog.String("owner_type", string(w.OwnerType)),
		slog.String("parent_admin_id", w.ParentAdminID),
	)
	return w, nil
}

// EnsureSuperAdmin opens the root wallet under id unless it already exists.
func (s *Service) EnsureSuperAdmin(ctx context.Context, id string) (ledger.Wallet, error) {
	w, err := s.Provision(ctx, ProvisionInput{ID: id, Kind: string(principal.KindSuperAdmin)})
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, apperr.ErrDuplicate) {
		return ledger.Wallet{}, err
	}
	rootID, err := s.SuperAdminID(ctx)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if rootID != id {
		return ledger.Wallet{}, apperr.Validationf("super admin is already %s, not %s", rootID, id)
	}
	return s.Get(ctx, id)
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (ledger.Wallet, error) {
	return s.engine.Store().Wallet(ctx, id)
}

// Principal resolves the principal owning wallet id.
func (s *Service) Principal(ctx context.Context, id string) (principal.Principal, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return principal.Principal{}, err
	}
	return w.Principal()
}

// SuperAdminID returns the root of the hierarchy.
func (s *Service) SuperAdminID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root != "" {
		return s.root, nil
	}
	roots, err := s.engine.Store().ListWallets(ctx, ledger.WalletFilter{OwnerType: principal.KindSuperAdmin})
	if err != nil {
		return "", err
	}
	if len(roots) == 0 {
		return "", apperr.NotFoundf("super admin wallet")
	}
	s.root = roots[0].ID
	return s.root, nil
}

// Children lists the users under adminID.
func (s *Service) Children(ctx context.Context, adminID string) ([]ledger.Wallet, error) {
	return s.engine.Store().ListWallets(ctx, ledger.WalletFilter{OwnerType: principal.KindUser, ParentAdminID: adminID})
}

// List returns wallets matching filter.
func (s *Service) List(ctx context.Context, filter ledger.WalletFilter) ([]ledger.Wallet, error) {
	return s.engine.Store().ListWallets(ctx, filter)
}

// Balance returns the ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	amount, err := s.engine.Balance(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: id, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// Account folds the wallet's entries into its derived totals.
func (s *Service) Account(ctx context.Context, id string) (Account, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	entries, err := s.engine.Store().Entries(ctx, id, ledger.EntryFilter{})
	if err != nil {
		return Account{}, err
	}
	t := ledger.Fold(entries)
	return Account{
		Wallet:         w,
		Balance:        t.Balance,
		TotalDeposited: t.Deposited,
		TotalWithdrawn: t.Withdrawn,
		Entries:        t.Entries,
		AsOf:           time.Now().UTC(),
	}, nil
}

// CanView reports whether actorID may read wallet id: its owner, the owning
// admin of a user wallet, or the super admin.
func (s *Service) CanView(ctx context.Context, actorID, id string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	if actorID == id {
		return true, nil
	}
	root, err := s.SuperAdminID(ctx)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	if actorID == root {
		return true, nil
	}
	w, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return w.OwnerType == principal.KindUser && w.ParentAdminID == actorID, nil
}
