package report

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/funding"
	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/money"
	"github.com/congo-pay/tiered_ledger/internal/principal"
	"github.com/congo-pay/tiered_ledger/internal/wallet"
)

// Viewer decides whether a principal may read a wallet.
type Viewer interface {
	CanView(ctx context.Context, actorID, walletID string) (bool, error)
	Principal(ctx context.Context, id string) (principal.Principal, error)
}

// Handler exposes the reporting view.
type Handler struct {
	service *Service
	viewer  Viewer
}

// NewHandler builds a report HTTP handler.
func NewHandler(service *Service, viewer Viewer) *Handler {
	return &Handler{service: service, viewer: viewer}
}

type aggregateResponse struct {
	Wallets   int    `json:"wallets"`
	Balance   string `json:"balance"`
	Deposited string `json:"total_deposited"`
	Withdrawn string `json:"total_withdrawn"`
}

func toAggregate(a Aggregate) aggregateResponse {
	return aggregateResponse{
		Wallets:   a.Wallets,
		Balance:   money.Format(a.Balance),
		Deposited: money.Format(a.Deposited),
		Withdrawn: money.Format(a.Withdrawn),
	}
}

// Statement returns a wallet statement for the window in the query string.
func (h *Handler) Statement(c *fiber.Ctx) error {
	id := c.Params("walletId")
	ok, err := h.viewer.CanView(c.UserContext(), middleware.ActorID(c), id)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	if !ok {
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	}
	filter, err := wallet.EntryFilterFromQuery(c)
	if err != nil {
		return err
	}
	st, err := h.service.Statement(c.UserContext(), id, filter)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	resp := fiber.Map{
		"wallet_id":       st.Wallet.ID,
		"owner_type":      string(st.Wallet.OwnerType),
		"opening_balance": money.Format(st.OpeningBalance),
		"closing_balance": money.Format(st.ClosingBalance),
		"credits":         money.Format(st.Credits),
		"debits":          money.Format(st.Debits),
		"entries":         ledger.Views(st.Entries),
		"generated_at":    st.GeneratedAt,
	}
	if !st.From.IsZero() {
		resp["from"] = st.From
	}
	if !st.To.IsZero() {
		resp["to"] = st.To
	}
	return c.JSON(resp)
}

// Totals returns per-tier aggregates. Super admin only.
func (h *Handler) Totals(c *fiber.Ctx) error {
	totals, err := h.service.TotalsByOwnerType(c.UserContext())
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	out := make(map[string]aggregateResponse, len(totals))
	for kind, agg := range totals {
		out[string(kind)] = toAggregate(agg)
	}
	return c.JSON(out)
}

// Admin returns one admin's summary to that admin or the super admin.
func (h *Handler) Admin(c *fiber.Ctx) error {
	adminID := c.Params("adminId")
	if middleware.ActorKind(c) != principal.KindSuperAdmin && middleware.ActorID(c) != adminID {
		return fiber.NewError(http.StatusNotFound, "admin not found")
	}
	sum, err := h.service.AdminSummary(c.UserContext(), adminID)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.JSON(fiber.Map{
		"admin_id":      sum.AdminID,
		"admin_balance": money.Format(sum.AdminBalance),
		"users":         toAggregate(sum.Users),
	})
}

// Requests returns fund request counts for ?scope=global|admin|user&id=.
// Callers default to their own scope and may only widen it as far as their
// tier allows.
func (h *Handler) Requests(c *fiber.Ctx) error {
	actor := middleware.ActorID(c)
	actorKind := middleware.ActorKind(c)
	scope := Scope{Kind: ScopeKind(strings.ToLower(c.Query("scope"))), ID: c.Query("id")}
	if scope.Kind == "" {
		switch actorKind {
		case principal.KindSuperAdmin:
			scope.Kind = ScopeGlobal
		case principal.KindAdmin:
			scope.Kind = ScopeAdmin
		default:
			scope.Kind = ScopeUser
		}
	}
	if scope.ID == "" && scope.Kind != ScopeGlobal {
		scope.ID = actor
	}
	if err := h.authorizeScope(c, scope); err != nil {
		return err
	}

	counts, err := h.service.RequestCounts(c.UserContext(), scope)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	out := make(map[string]map[string]int, len(counts.Counts))
	for status, byType := range counts.Counts {
		row := make(map[string]int, len(byType))
		for typ, n := range byType {
			row[string(typ)] = n
		}
		out[string(status)] = row
	}
	return c.JSON(fiber.Map{
		"scope":  string(counts.Scope.Kind),
		"id":     counts.Scope.ID,
		"total":  counts.Total,
		"counts": out,
	})
}

func (h *Handler) authorizeScope(c *fiber.Ctx, scope Scope) error {
	actor := middleware.ActorID(c)
	switch middleware.ActorKind(c) {
	case principal.KindSuperAdmin:
		return nil
	case principal.KindAdmin:
		switch scope.Kind {
		case ScopeAdmin:
			if scope.ID == actor {
				return nil
			}
		case ScopeUser:
			p, err := h.viewer.Principal(c.UserContext(), scope.ID)
			if err != nil {
				return fiber.NewError(apperr.Status(err), err.Error())
			}
			if p.IsUser() && p.ParentAdminID == actor {
				return nil
			}
		}
	default:
		if scope.Kind == ScopeUser && scope.ID == actor {
			return nil
		}
	}
	return fiber.NewError(http.StatusForbidden, "scope not permitted")
}

var _ RequestLister = (*funding.Service)(nil)
