package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/keylock"
)

type entryRef struct {
	walletID string
	index    int
}

type inMemoryStore struct {
	mu      sync.RWMutex
	writers *keylock.Locker
	wallets map[string]Wallet
	entries map[string][]Entry
	byID    map[string]entryRef
	keys    map[string]struct{}
	now     func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development. Entries live in a per-wallet arena indexed by Seq-1.
func NewInMemory() Store {
	return &inMemoryStore{
		writers: keylock.New(),
		wallets: make(map[string]Wallet),
		entries: make(map[string][]Entry),
		byID:    make(map[string]entryRef),
		keys:    make(map[string]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *inMemoryStore) OpenWallet(_ context.Context, wallet Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[wallet.ID]; exists {
		return fmt.Errorf("wallet %s: %w", wallet.ID, apperr.ErrDuplicate)
	}
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = s.now()
	}
	s.wallets[wallet.ID] = wallet
	return nil
}

func (s *inMemoryStore) Wallet(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, apperr.NotFoundf("wallet %s", id)
	}
	return w, nil
}

func (s *inMemoryStore) ListWallets(_ context.Context, filter WalletFilter) ([]Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		if filter.OwnerType != "" && w.OwnerType != filter.OwnerType {
			continue
		}
		if filter.ParentAdminID != "" && w.ParentAdminID != filter.ParentAdminID {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *inMemoryStore) Balance(_ context.Context, walletID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.wallets[walletID]; !ok {
		return 0, apperr.NotFoundf("wallet %s", walletID)
	}
	return s.latestLocked(walletID), nil
}

func (s *inMemoryStore) latestLocked(walletID string) int64 {
	list := s.entries[walletID]
	if len(list) == 0 {
		return 0
	}
	return list[len(list)-1].BalanceAfter
}

func (s *inMemoryStore) Entries(_ context.Context, walletID string, filter EntryFilter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.wallets[walletID]; !ok {
		return nil, apperr.NotFoundf("wallet %s", walletID)
	}
	out := make([]Entry, 0, len(s.entries[walletID]))
	for _, e := range s.entries[walletID] {
		if !filter.match(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *inMemoryStore) Entry(_ context.Context, entryID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.byID[entryID]
	if !ok {
		return Entry{}, apperr.NotFoundf("entry %s", entryID)
	}
	return s.entries[ref.walletID][ref.index], nil
}

func (s *inMemoryStore) Posted(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *inMemoryStore) Commit(_ context.Context, posting Posting) ([]Entry, error) {
	if err := validatePosting(posting); err != nil {
		return nil, err
	}

	walletIDs := make([]string, 0, len(posting.Legs))
	for _, leg := range posting.Legs {
		walletIDs = append(walletIDs, leg.WalletID)
	}
	unlock := s.writers.Lock(walletIDs...)
	defer unlock()

	// Holding every touched wallet's writer lock, the latest entries cannot
	// move underneath us; compute first, write only if every leg fits.
	s.mu.RLock()
	if _, used := s.keys[posting.Key]; used && posting.Key != "" {
		s.mu.RUnlock()
		return nil, fmt.Errorf("posting %s: %w", posting.Key, apperr.ErrDuplicate)
	}
	heads := make(map[string]*head, len(walletIDs))
	for _, id := range walletIDs {
		w, ok := s.wallets[id]
		if !ok {
			s.mu.RUnlock()
			return nil, apperr.NotFoundf("wallet %s", id)
		}
		heads[id] = &head{ownerType: w.OwnerType, seq: int64(len(s.entries[id])), balance: s.latestLocked(id)}
	}
	s.mu.RUnlock()

	pending, err := plan(posting, heads, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if posting.Key != "" {
		if _, used := s.keys[posting.Key]; used {
			return nil, fmt.Errorf("posting %s: %w", posting.Key, apperr.ErrDuplicate)
		}
		s.keys[posting.Key] = struct{}{}
	}
	for _, e := range pending {
		s.entries[e.WalletID] = append(s.entries[e.WalletID], e)
		s.byID[e.ID] = entryRef{walletID: e.WalletID, index: len(s.entries[e.WalletID]) - 1}
	}
	return pending, nil
}
