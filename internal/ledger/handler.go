package ledger

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/money"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

var validate = validator.New()

// Handler exposes the administrative ledger endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type postRequest struct {
	WalletID    string `json:"wallet_id" validate:"required"`
	Direction   string `json:"direction" validate:"required,oneof=CREDIT DEBIT"`
	Amount      string `json:"amount" validate:"required"`
	Reason      string `json:"reason" validate:"required,max=500"`
	ReferenceID string `json:"reference_id" validate:"max=128"`
}

type settleRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	PnL      string `json:"pnl" validate:"required"`
	TradeRef string `json:"trade_ref" validate:"required,max=128"`
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Post writes a single-sided adjustment. Super admin only; this is how money
// enters the system.
func (h *Handler) Post(c *fiber.Ctx) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req.Direction = strings.ToUpper(strings.TrimSpace(req.Direction))
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.engine.Post(c.UserContext(), PostInput{
		WalletID:    req.WalletID,
		Direction:   Direction(req.Direction),
		Kind:        KindAdjustment,
		Amount:      amount,
		Reason:      req.Reason,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(entry.View())
}

// Settle books a closed trade's profit or loss on a user wallet. Allowed for
// the super admin and the user's owning admin.
func (h *Handler) Settle(c *fiber.Ctx) error {
	var req settleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pnl, err := money.Parse(req.PnL)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.engine.Store().Wallet(c.UserContext(), req.UserID)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	if middleware.ActorKind(c) != principal.KindSuperAdmin && w.ParentAdminID != middleware.ActorID(c) {
		return fiber.NewError(http.StatusForbidden, "only the owning admin or the super admin settles this user")
	}
	entry, err := h.engine.Settle(c.UserContext(), SettleInput{UserID: req.UserID, PnL: pnl, TradeRef: req.TradeRef})
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(entry.View())
}

// Reverse compensates an entry. Super admin only.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	var req reverseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.engine.Reverse(c.UserContext(), c.Params("entryId"), req.Reason)
	if err != nil {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(entry.View())
}

// Verify re-folds a wallet's chain and reports the first inconsistency.
func (h *Handler) Verify(c *fiber.Ctx) error {
	v, err := h.engine.Verify(c.UserContext(), c.Params("walletId"))
	if err != nil && v.WalletID == "" {
		return fiber.NewError(apperr.Status(err), err.Error())
	}
	status := http.StatusOK
	if !v.Consistent {
		status = http.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"wallet_id":     v.WalletID,
		"entries":       v.Entries,
		"balance":       money.Format(v.Balance),
		"folded":        money.Format(v.Folded),
		"consistent":    v.Consistent,
		"broken_at_seq": v.BrokenAtSeq,
		"problem":       v.Problem,
	})
}
