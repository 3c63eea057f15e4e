package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/principal"
	"github.com/congo-pay/tiered_ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet provisioning and read endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", middleware.RequireKind(principal.KindSuperAdmin, principal.KindAdmin), h.Create)
	r.Get("/wallets", h.List)
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/wallets/:walletId/balance", h.Balance)
	r.Get("/wallets/:walletId/account", h.Account)
	r.Get("/wallets/:walletId/entries", h.Entries)
}
