package funding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/keylock"
)

// MemoryRepository is an in-memory implementation useful for testing.
type MemoryRepository struct {
	mu       sync.RWMutex
	resolves *keylock.Locker
	requests map[string]Request
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{resolves: keylock.New(), requests: make(map[string]Request)}
}

// Create stores a request.
func (r *MemoryRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[req.ID]; exists {
		return fmt.Errorf("fund request %s: %w", req.ID, apperr.ErrDuplicate)
	}
	r.requests[req.ID] = clone(req)
	return nil
}

// Get retrieves a request by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, apperr.NotFoundf("fund request %s", id)
	}
	return clone(req), nil
}

// List returns matching requests, newest first.
func (r *MemoryRepository) List(_ context.Context, filter Filter) ([]Request, error) {
	r.mu.RLock()
	out := make([]Request, 0)
	for _, req := range r.requests {
		if filter.match(req) {
			out = append(out, clone(req))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Resolve serializes fn per request id.
func (r *MemoryRepository) Resolve(ctx context.Context, id string, fn func(ctx context.Context, r *Request) error) (Request, error) {
	unlock := r.resolves.Lock(id)
	defer unlock()

	req, err := r.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := fn(ctx, &req); err != nil {
		return Request{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.requests[id]
	stored.Status = req.Status
	stored.Remarks = req.Remarks
	stored.Fee = req.Fee
	stored.ResolvedAt = req.ResolvedAt
	stored.ResolvedBy = req.ResolvedBy
	r.requests[id] = clone(stored)
	return clone(stored), nil
}

func clone(req Request) Request {
	if req.Withdrawal != nil {
		d := *req.Withdrawal
		req.Withdrawal = &d
	}
	if req.ResolvedAt != nil {
		t := *req.ResolvedAt
		req.ResolvedAt = &t
	}
	return req
}
