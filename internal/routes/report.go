package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/principal"
	"github.com/congo-pay/tiered_ledger/internal/report"
)

// RegisterReportRoutes wires the read-only reporting view.
func RegisterReportRoutes(r fiber.Router, h *report.Handler) {
	group := r.Group("/reports")
	group.Get("/statements/:walletId", h.Statement)
	group.Get("/totals", middleware.RequireKind(principal.KindSuperAdmin), h.Totals)
	group.Get("/admins/:adminId", middleware.RequireKind(principal.KindSuperAdmin, principal.KindAdmin), h.Admin)
	group.Get("/fund-requests", h.Requests)
}
