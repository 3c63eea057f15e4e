package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/money"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type provisionRequest struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	ParentAdminID string `json:"parent_admin_id"`
}

type walletResponse struct {
	ID            string    `json:"id"`
	OwnerType     string    `json:"owner_type"`
	ParentAdminID string    `json:"parent_admin_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponse(w ledger.Wallet) walletResponse {
	return walletResponse{ID: w.ID, OwnerType: string(w.OwnerType), ParentAdminID: w.ParentAdminID, CreatedAt: w.CreatedAt}
}

// Create provisions a principal and its wallet. The super admin creates admins
// and users; an admin creates users under itself.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	kind, err := principal.ParseKind(req.Kind)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	switch middleware.ActorKind(c) {
	case principal.KindSuperAdmin:
	case principal.KindAdmin:
		if kind != principal.KindUser {
			return fiber.NewError(http.StatusForbidden, "admins may only create users")
		}
		if req.ParentAdminID == "" {
			req.ParentAdminID = middleware.ActorID(c)
		}
		if req.ParentAdminID != middleware.ActorID(c) {
			return fiber.NewError(http.StatusForbidden, "admins may only create their own users")
		}
	default:
		return fiber.NewError(http.StatusForbidden, "users may not create wallets")
	}

	w, err := h.service.Provision(c.UserContext(), ProvisionInput{ID: req.ID, Kind: string(kind), ParentAdminID: req.ParentAdminID})
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// List returns the wallets visible to the caller.
func (h *Handler) List(c *fiber.Ctx) error {
	actor := middleware.ActorID(c)
	var (
		wallets []ledger.Wallet
		err     error
	)
	switch middleware.ActorKind(c) {
	case principal.KindSuperAdmin:
		filter := ledger.WalletFilter{ParentAdminID: c.Query("parent_admin_id")}
		if raw := c.Query("owner_type"); raw != "" {
			if filter.OwnerType, err = principal.ParseKind(raw); err != nil {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
		}
		wallets, err = h.service.List(c.UserContext(), filter)
	case principal.KindAdmin:
		wallets, err = h.service.Children(c.UserContext(), actor)
	default:
		var w ledger.Wallet
		if w, err = h.service.Get(c.UserContext(), actor); err == nil {
			wallets = []ledger.Wallet{w}
		}
	}
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toResponse(w))
	}
	return c.JSON(fiber.Map{"items": out})
}

// Get returns wallet metadata.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := h.visible(c)
	if err != nil {
		return err
	}
	w, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.JSON(toResponse(w))
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	id, err := h.visible(c)
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":     id,
		"balance":       money.Format(balance.Amount),
		"balance_minor": balance.Amount,
		"timestamp":     balance.AsOf,
	})
}

// Account returns the balance together with lifetime totals.
func (h *Handler) Account(c *fiber.Ctx) error {
	id, err := h.visible(c)
	if err != nil {
		return err
	}
	acct, err := h.service.Account(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.JSON(fiber.Map{
		"wallet":          toResponse(acct.Wallet),
		"balance":         money.Format(acct.Balance),
		"total_deposited": money.Format(acct.TotalDeposited),
		"total_withdrawn": money.Format(acct.TotalWithdrawn),
		"entries":         acct.Entries,
		"timestamp":       acct.AsOf,
	})
}

// Entries lists the wallet's entries in order, optionally windowed by
// RFC 3339 from/to query parameters.
func (h *Handler) Entries(c *fiber.Ctx) error {
	id, err := h.visible(c)
	if err != nil {
		return err
	}
	filter, err := EntryFilterFromQuery(c)
	if err != nil {
		return err
	}
	entries, err := h.service.engine.Store().Entries(c.UserContext(), id, filter)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.JSON(fiber.Map{"items": ledger.Views(entries)})
}

// EntryFilterFromQuery reads from, to and limit query parameters.
func EntryFilterFromQuery(c *fiber.Ctx) (ledger.EntryFilter, error) {
	filter := ledger.EntryFilter{Limit: c.QueryInt("limit", 0)}
	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.EntryFilter{}, fiber.NewError(http.StatusBadRequest, "invalid "+name+": "+err.Error())
		}
		*dst = t.UTC()
	}
	return filter, nil
}

func (h *Handler) visible(c *fiber.Ctx) (string, error) {
	id := c.Params("walletId")
	ok, err := h.service.CanView(c.UserContext(), middleware.ActorID(c), id)
	if err != nil {
		return "", fiber.NewError(apperr.Status(err), err.Error())
	}
	if !ok {
		return "", fiber.NewError(http.StatusNotFound, "wallet not found")
	}
	return id, nil
}
