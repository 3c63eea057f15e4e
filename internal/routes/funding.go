package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/funding"
	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// RegisterFundingRoutes wires the fund request workflow.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, createLimiter fiber.Handler) {
	group := r.Group("/fund-requests")
	group.Post("", middleware.RequireKind(principal.KindAdmin, principal.KindUser), createLimiter, h.Create)
	group.Get("", h.List)
	group.Get("/pending", middleware.RequireKind(principal.KindSuperAdmin, principal.KindAdmin), h.Pending)
	group.Get("/:requestId", h.Get)
	group.Post("/:requestId/approve", h.Approve)
	group.Post("/:requestId/reject", h.Reject)
	group.Post("/:requestId/cancel", h.Cancel)
}
