package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/events"
	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/money"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Directory resolves principals and the hierarchy root.
type Directory interface {
	Principal(ctx context.Context, id string) (principal.Principal, error)
	SuperAdminID(ctx context.Context) (string, error)
}

// Service runs the fund request workflow: requests are created pending and
// only an authorized approval moves money.
type Service struct {
	repo      Repository
	engine    *ledger.Engine
	directory Directory
	publisher events.Publisher
	logger    *slog.Logger
	fee       int64
	now       func() time.Time
}

// NewService wires the workflow. withdrawalFee is in minor units and applies
// to every approved withdrawal.
func NewService(repo Repository, engine *ledger.Engine, directory Directory, publisher events.Publisher, logger *slog.Logger, withdrawalFee int64) (*Service, error) {
	if repo == nil || engine == nil || directory == nil {
		return nil, fmt.Errorf("funding: repository, ledger engine and directory are required")
	}
	if withdrawalFee < 0 {
		return nil, apperr.Validationf("withdrawal fee must not be negative, got %d", withdrawalFee)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		engine:    engine,
		directory: directory,
		publisher: publisher,
		logger:    logger,
		fee:       withdrawalFee,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithdrawalFee returns the configured fee in minor units.
func (s *Service) WithdrawalFee() int64 { return s.fee }

// PostingKey is the ledger idempotency key of a request's approval.
func PostingKey(requestID string) string { return "fund_request:" + requestID }

// CreateInput captures a new request.
type CreateInput struct {
	RequesterID    string
	Type           Type
	Amount         int64
	Withdrawal     *WithdrawalDetails
	ProofReference string
	Remarks        string
}

// Create records a pending request. No ledger entry is written. Withdrawals
// are pre-checked against the current balance; the check is advisory and is
// repeated atomically on approval.
func (s *Service) Create(ctx context.Context, in CreateInput) (Request, error) {
	if !in.Type.Valid() {
		return Request{}, apperr.Validationf("unknown request type %q", in.Type)
	}
	if in.Amount <= 0 {
		return Request{}, apperr.Validationf("amount must be positive, got %d", in.Amount)
	}
	requester, err := s.directory.Principal(ctx, in.RequesterID)
	if err != nil {
		return Request{}, err
	}
	if requester.IsSuperAdmin() {
		return Request{}, apperr.Validationf("the super admin funds itself with a direct posting")
	}
	root, err := s.directory.SuperAdminID(ctx)
	if err != nil {
		return Request{}, err
	}
	counterparty, ok := principal.Counterparty(requester, root)
	if !ok {
		return Request{}, apperr.Validationf("principal %s has no counterparty", requester.ID)
	}

	req := Request{
		ID:             uuid.NewString(),
		RequesterID:    requester.ID,
		RequesterType:  requester.Kind,
		CounterpartyID: counterparty,
		Type:           in.Type,
		Amount:         in.Amount,
		Status:         StatusPending,
		ProofReference: strings.TrimSpace(in.ProofReference),
		Remarks:        strings.TrimSpace(in.Remarks),
		CreatedAt:      s.now(),
	}

	if in.Type == TypeWithdrawal {
		if in.Withdrawal == nil {
			return Request{}, apperr.Validationf("withdrawal details are required")
		}
		details := *in.Withdrawal
		details.normalize()
		if err := details.Validate(); err != nil {
			return Request{}, err
		}
		balance, err := s.engine.Balance(ctx, requester.ID)
		if err != nil {
			return Request{}, err
		}
		if balance < in.Amount {
			return Request{}, fmt.Errorf("%w: %w: balance %s below requested %s", apperr.ErrValidation,
				apperr.ErrInsufficientFunds, money.Format(balance), money.Format(in.Amount))
		}
		req.Withdrawal = &details
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return Request{}, err
	}
	s.logger.Info("fund_request.created",
		slog.String("request_id", req.ID),
		slog.String("requester_id", req.RequesterID),
		slog.String("type", string(req.Type)),
		slog.Int64("amount", req.Amount),
	)
	s.emit(ctx, events.KindFundRequestCreated, req)
	return req, nil
}

// Approve moves the money and marks the request approved, atomically with
// respect to concurrent approvals of the same request. A deposit debits the
// counterparty; a withdrawal debits the requester for amount plus fee.
// Insufficient funds leave the request pending.
func (s *Service) Approve(ctx context.Context, requestID, approverID string) (Request, error) {
	root, err := s.directory.SuperAdminID(ctx)
	if err != nil {
		return Request{}, err
	}
	req, err := s.repo.Resolve(ctx, requestID, func(ctx context.Context, r *Request) error {
		if err := s.authorize(ctx, r, root, approverID); err != nil {
			return err
		}
		if r.Status != StatusPending {
			return fmt.Errorf("fund request %s is %s: %w", r.ID, r.Status, apperr.ErrAlreadyResolved)
		}

		transfer, fee := s.transfer(r)
		if _, err := s.engine.Transfer(ctx, transfer); err != nil {
			if !errors.Is(err, apperr.ErrDuplicate) {
				return err
			}
			// A previous attempt posted but never recorded the transition.
			s.logger.Warn("fund_request.approve_replayed", slog.String("request_id", r.ID))
		}
		resolvedAt := s.now()
		r.Status = StatusApproved
		r.Fee = fee
		r.ResolvedAt = &resolvedAt
		r.ResolvedBy = approverID
		return nil
	})
	if err != nil {
		s.logger.Info("fund_request.approve_failed",
			slog.String("request_id", requestID),
			slog.String("approver_id", approverID),
			slog.Any("error", err),
		)
		return Request{}, err
	}
	s.logger.Info("fund_request.approved",
		slog.String("request_id", req.ID),
		slog.String("approver_id", approverID),
		slog.Int64("amount", req.Amount),
		slog.Int64("fee", req.Fee),
	)
	s.emit(ctx, events.KindFundRequestApproved, req)
	return req, nil
}

// Reject closes a pending request without touching the ledger. A request
// whose posting already exists can only be approved.
func (s *Service) Reject(ctx context.Context, requestID, approverID, remarks string) (Request, error) {
	root, err := s.directory.SuperAdminID(ctx)
	if err != nil {
		return Request{}, err
	}
	req, err := s.repo.Resolve(ctx, requestID, func(ctx context.Context, r *Request) error {
		if err := s.authorize(ctx, r, root, approverID); err != nil {
			return err
		}
		if err := s.closable(ctx, r); err != nil {
			return err
		}
		resolvedAt := s.now()
		r.Status = StatusRejected
		r.ResolvedAt = &resolvedAt
		r.ResolvedBy = approverID
		if remarks = strings.TrimSpace(remarks); remarks != "" {
			r.Remarks = remarks
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.logger.Info("fund_request.rejected", slog.String("request_id", req.ID), slog.String("approver_id", approverID))
	s.emit(ctx, events.KindFundRequestRejected, req)
	return req, nil
}

// Cancel lets the requester withdraw its own pending request.
func (s *Service) Cancel(ctx context.Context, requestID, requesterID string) (Request, error) {
	req, err := s.repo.Resolve(ctx, requestID, func(ctx context.Context, r *Request) error {
		if r.RequesterID != requesterID {
			return fmt.Errorf("only the requester may cancel %s: %w", r.ID, apperr.ErrNotAuthorized)
		}
		if err := s.closable(ctx, r); err != nil {
			return err
		}
		resolvedAt := s.now()
		r.Status = StatusCancelled
		r.ResolvedAt = &resolvedAt
		r.ResolvedBy = requesterID
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.logger.Info("fund_request.cancelled", slog.String("request_id", req.ID))
	s.emit(ctx, events.KindFundRequestCancelled, req)
	return req, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, requestID string) (Request, error) {
	return s.repo.Get(ctx, requestID)
}

// List returns requests matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Request, error) {
	return s.repo.List(ctx, filter)
}

// Pending returns the queue approverID may act on: everything for the super
// admin, the users under an admin for that admin, nothing for a user.
func (s *Service) Pending(ctx context.Context, approverID string) ([]Request, error) {
	approver, err := s.directory.Principal(ctx, approverID)
	if err != nil {
		return nil, err
	}
	switch approver.Kind {
	case principal.KindSuperAdmin:
		return s.repo.List(ctx, Filter{Status: StatusPending})
	case principal.KindAdmin:
		return s.repo.List(ctx, Filter{Status: StatusPending, CounterpartyID: approver.ID, RequesterType: principal.KindUser})
	default:
		return []Request{}, nil
	}
}

// Visible reports whether actorID may read req: its requester, anyone in its
// approval authority, or the super admin.
func (s *Service) Visible(ctx context.Context, req Request, actorID string) (bool, error) {
	if req.RequesterID == actorID {
		return true, nil
	}
	root, err := s.directory.SuperAdminID(ctx)
	if err != nil {
		return false, err
	}
	if actorID == root {
		return true, nil
	}
	return s.authorize(ctx, &req, root, actorID) == nil, nil
}

func (s *Service) authorize(ctx context.Context, r *Request, root, approverID string) error {
	requester, err := s.directory.Principal(ctx, r.RequesterID)
	if err != nil {
		return err
	}
	if !principal.AuthorityFor(requester, root).Contains(approverID) {
		return fmt.Errorf("%s may not resolve requests of %s: %w", approverID, r.RequesterID, apperr.ErrNotAuthorized)
	}
	return nil
}

// closable checks that r may end without moving money: it is pending and
// no approval posting was committed for it.
func (s *Service) closable(ctx context.Context, r *Request) error {
	if r.Status != StatusPending {
		return fmt.Errorf("fund request %s is %s: %w", r.ID, r.Status, apperr.ErrAlreadyResolved)
	}
	posted, err := s.engine.Posted(ctx, PostingKey(r.ID))
	if err != nil {
		return err
	}
	if posted {
		return fmt.Errorf("fund request %s already moved money, approve it to finish: %w", r.ID, apperr.ErrAlreadyResolved)
	}
	return nil
}

// transfer builds the approval posting of r. A deposit moves the amount
// from the counterparty to the requester; a withdrawal moves it back and
// debits the fee from the requester as a separate leg.
func (s *Service) transfer(r *Request) (ledger.TransferInput, int64) {
	in := ledger.TransferInput{
		FromWalletID:     r.CounterpartyID,
		ToWalletID:       r.RequesterID,
		Amount:           r.Amount,
		Kind:             ledger.KindDeposit,
		Reason:           fmt.Sprintf("%s request %s", strings.ToLower(string(r.Type)), r.ID),
		RelatedRequestID: r.ID,
		Key:              PostingKey(r.ID),
	}
	if r.Type == TypeDeposit {
		return in, 0
	}

	in.FromWalletID, in.ToWalletID = r.RequesterID, r.CounterpartyID
	in.Kind = ledger.KindWithdrawal
	if s.fee > 0 {
		in.Extra = []ledger.Leg{{
			WalletID:  r.RequesterID,
			Direction: ledger.Debit,
			Kind:      ledger.KindWithdrawalFee,
			Amount:    s.fee,
			Reason:    "withdrawal fee " + r.ID,
		}}
	}
	return in, s.fee
}

func (s *Service) emit(ctx context.Context, kind string, req Request) {
	events.Emit(ctx, s.publisher, s.logger, kind, req.RequesterID, map[string]any{
		"request_id":      req.ID,
		"requester_id":    req.RequesterID,
		"counterparty_id": req.CounterpartyID,
		"type":            string(req.Type),
		"amount":          req.Amount,
		"fee":             req.Fee,
		"status":          string(req.Status),
	})
}
