package funding

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/money"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Handler exposes HTTP endpoints for the fund request workflow.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create raises a deposit or withdrawal request for the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, describe(err))
	}
	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	created, err := h.service.Create(c.UserContext(), CreateInput{
		RequesterID:    middleware.ActorID(c),
		Type:           Type(req.Type),
		Amount:         amount,
		Withdrawal:     req.Withdrawal,
		ProofReference: req.ProofReference,
		Remarks:        req.Remarks,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(created))
}

// Get returns one request visible to the caller.
func (h *Handler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("requestId"))
	if err != nil {
		return h.fail(c, err)
	}
	ok, err := h.service.Visible(c.UserContext(), req, middleware.ActorID(c))
	if err != nil {
		return h.fail(c, err)
	}
	if !ok {
		return fiber.NewError(http.StatusNotFound, "fund request not found")
	}
	return c.JSON(toResponse(req))
}

// List returns the caller's requests. Users see their own; admins see the
// requests they resolve, or their own with ?mine=true; the super admin sees
// everything.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := Filter{
		Status: Status(strings.ToUpper(c.Query("status"))),
		Type:   Type(strings.ToUpper(c.Query("type"))),
		Limit:  c.QueryInt("limit", 100),
	}
	actor := middleware.ActorID(c)
	switch middleware.ActorKind(c) {
	case principal.KindUser:
		filter.RequesterID = actor
	case principal.KindAdmin:
		if c.QueryBool("mine") {
			filter.RequesterID = actor
		} else {
			filter.CounterpartyID = actor
			filter.RequesterID = c.Query("requester_id")
		}
	default:
		filter.RequesterID = c.Query("requester_id")
	}
	reqs, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"items": toResponses(reqs)})
}

// Pending returns the approval queue of the caller.
func (h *Handler) Pending(c *fiber.Ctx) error {
	reqs, err := h.service.Pending(c.UserContext(), middleware.ActorID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"items": toResponses(reqs)})
}

// Approve executes the ledger transfer for a pending request.
func (h *Handler) Approve(c *fiber.Ctx) error {
	req, err := h.service.Approve(c.UserContext(), c.Params("requestId"), middleware.ActorID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(toResponse(req))
}

// Reject closes a pending request without moving money.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var body ResolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	req, err := h.service.Reject(c.UserContext(), c.Params("requestId"), middleware.ActorID(c), body.Remarks)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(toResponse(req))
}

// Cancel lets the requester withdraw a pending request.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	req, err := h.service.Cancel(c.UserContext(), c.Params("requestId"), middleware.ActorID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(toResponse(req))
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	if errors.Is(err, apperr.ErrInsufficientFunds) {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
			"hint":  "top up the wallet with a deposit request before retrying",
		})
	}
	return fiber.NewError(apperr.Status(err), err.Error())
}
