package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// RegisterLedgerRoutes wires administrative postings, settlements and checks.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	root := middleware.RequireKind(principal.KindSuperAdmin)
	r.Post("/ledger/postings", root, h.Post)
	r.Post("/ledger/entries/:entryId/reverse", root, h.Reverse)
	r.Get("/ledger/wallets/:walletId/verify", root, h.Verify)
	r.Post("/settlements", middleware.RequireKind(principal.KindSuperAdmin, principal.KindAdmin), h.Settle)
}
