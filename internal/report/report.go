// Package report derives read-only projections from the ledger and the fund
// request log. Nothing here is stored; every figure is folded on demand.
package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/funding"
	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// foldParallelism bounds concurrent per-wallet entry scans.
const foldParallelism = 8

// RequestLister reads fund requests.
type RequestLister interface {
	List(ctx context.Context, filter funding.Filter) ([]funding.Request, error)
}

// Service builds statements and aggregates.
type Service struct {
	store    ledger.Store
	requests RequestLister
	now      func() time.Time
}

// NewService wires the reporting view.
func NewService(store ledger.Store, requests RequestLister) *Service {
	return &Service{store: store, requests: requests, now: func() time.Time { return time.Now().UTC() }}
}

// Statement is one wallet's chronological entries within a window.
type Statement struct {
	Wallet         ledger.Wallet
	From           time.Time
	To             time.Time
	OpeningBalance int64
	ClosingBalance int64
	Credits        int64
	Debits         int64
	Entries        []ledger.Entry
	GeneratedAt    time.Time
}

// Statement returns walletID's entries in [filter.From, filter.To) with the
// balances on either side of the window.
func (s *Service) Statement(ctx context.Context, walletID string, filter ledger.EntryFilter) (Statement, error) {
	w, err := s.store.Wallet(ctx, walletID)
	if err != nil {
		return Statement{}, err
	}
	all, err := s.store.Entries(ctx, walletID, ledger.EntryFilter{})
	if err != nil {
		return Statement{}, err
	}

	st := Statement{Wallet: w, From: filter.From, To: filter.To, Entries: []ledger.Entry{}, GeneratedAt: s.now()}
	for _, e := range all {
		switch {
		case !filter.From.IsZero() && e.CreatedAt.Before(filter.From):
			st.OpeningBalance = e.BalanceAfter
			st.ClosingBalance = e.BalanceAfter
			continue
		case !filter.To.IsZero() && !e.CreatedAt.Before(filter.To):
			continue
		}
		if filter.Limit > 0 && len(st.Entries) == filter.Limit {
			continue
		}
		st.Entries = append(st.Entries, e)
		st.ClosingBalance = e.BalanceAfter
		if e.Direction == ledger.Credit {
			st.Credits += e.Amount
		} else {
			st.Debits += e.Amount
		}
	}
	return st, nil
}

// Aggregate sums folded wallet totals.
type Aggregate struct {
	Wallets   int
	Balance   int64
	Deposited int64
	Withdrawn int64
}

func (a *Aggregate) add(t ledger.Totals) {
	a.Wallets++
	a.Balance += t.Balance
	a.Deposited += t.Deposited
	a.Withdrawn += t.Withdrawn
}

// TotalsByOwnerType folds every wallet and groups the sums by tier. All three
// tiers are present even when empty.
func (s *Service) TotalsByOwnerType(ctx context.Context) (map[principal.Kind]Aggregate, error) {
	wallets, err := s.store.ListWallets(ctx, ledger.WalletFilter{})
	if err != nil {
		return nil, err
	}
	totals, err := s.fold(ctx, wallets)
	if err != nil {
		return nil, err
	}
	out := map[principal.Kind]Aggregate{
		principal.KindSuperAdmin: {},
		principal.KindAdmin:      {},
		principal.KindUser:       {},
	}
	for i, w := range wallets {
		agg := out[w.OwnerType]
		agg.add(totals[i])
		out[w.OwnerType] = agg
	}
	return out, nil
}

// AdminSummary is an admin's own balance next to the sums over its users.
type AdminSummary struct {
	AdminID      string
	AdminBalance int64
	Users        Aggregate
}

// AdminSummary folds the users under adminID.
func (s *Service) AdminSummary(ctx context.Context, adminID string) (AdminSummary, error) {
	admin, err := s.store.Wallet(ctx, adminID)
	if err != nil {
		return AdminSummary{}, err
	}
	if admin.OwnerType != principal.KindAdmin {
		return AdminSummary{}, apperr.Validationf("%s is %s, not an admin", adminID, admin.OwnerType)
	}
	balance, err := s.store.Balance(ctx, adminID)
	if err != nil {
		return AdminSummary{}, err
	}
	users, err := s.store.ListWallets(ctx, ledger.WalletFilter{OwnerType: principal.KindUser, ParentAdminID: adminID})
	if err != nil {
		return AdminSummary{}, err
	}
	totals, err := s.fold(ctx, users)
	if err != nil {
		return AdminSummary{}, err
	}
	sum := AdminSummary{AdminID: adminID, AdminBalance: balance}
	for _, t := range totals {
		sum.Users.add(t)
	}
	return sum, nil
}

// ScopeKind selects which requests RequestCounts looks at.
type ScopeKind string

const (
	ScopeGlobal ScopeKind = "global"
	ScopeAdmin  ScopeKind = "admin"
	ScopeUser   ScopeKind = "user"
)

// Scope is a ScopeKind with the principal it applies to. Admin scope covers
// the admin's own requests and those of its users.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// RequestCounts tallies requests by status and type.
type RequestCounts struct {
	Scope  Scope
	Total  int
	Counts map[funding.Status]map[funding.Type]int
}

// RequestCounts returns counts for every status and type pair, zeros included.
func (s *Service) RequestCounts(ctx context.Context, scope Scope) (RequestCounts, error) {
	var filters []funding.Filter
	switch scope.Kind {
	case ScopeGlobal:
		filters = []funding.Filter{{}}
	case ScopeUser:
		if scope.ID == "" {
			return RequestCounts{}, apperr.Validationf("user scope needs an id")
		}
		filters = []funding.Filter{{RequesterID: scope.ID}}
	case ScopeAdmin:
		if scope.ID == "" {
			return RequestCounts{}, apperr.Validationf("admin scope needs an id")
		}
		filters = []funding.Filter{
			{RequesterID: scope.ID},
			{CounterpartyID: scope.ID, RequesterType: principal.KindUser},
		}
	default:
		return RequestCounts{}, apperr.Validationf("unknown scope %q", scope.Kind)
	}

	out := RequestCounts{Scope: scope, Counts: emptyCounts()}
	for _, f := range filters {
		reqs, err := s.requests.List(ctx, f)
		if err != nil {
			return RequestCounts{}, err
		}
		for _, r := range reqs {
			byType, ok := out.Counts[r.Status]
			if !ok {
				return RequestCounts{}, fmt.Errorf("request %s has unknown status %q", r.ID, r.Status)
			}
			byType[r.Type]++
			out.Total++
		}
	}
	return out, nil
}

func emptyCounts() map[funding.Status]map[funding.Type]int {
	out := make(map[funding.Status]map[funding.Type]int, 4)
	for _, st := range []funding.Status{funding.StatusPending, funding.StatusApproved, funding.StatusRejected, funding.StatusCancelled} {
		out[st] = map[funding.Type]int{funding.TypeDeposit: 0, funding.TypeWithdrawal: 0}
	}
	return out
}

// fold reads and folds each wallet's entries concurrently. The result is
// index-aligned with wallets.
func (s *Service) fold(ctx context.Context, wallets []ledger.Wallet) ([]ledger.Totals, error) {
	totals := make([]ledger.Totals, len(wallets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(foldParallelism)
	for i, w := range wallets {
		i, id := i, w.ID
		g.Go(func() error {
			entries, err := s.store.Entries(gctx, id, ledger.EntryFilter{})
			if err != nil {
				return fmt.Errorf("fold wallet %s: %w", id, err)
			}
			totals[i] = ledger.Fold(entries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}
