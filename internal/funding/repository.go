package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// Repository persists fund requests.
type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, filter Filter) ([]Request, error)
	// Resolve runs fn with exclusive access to the request. When fn returns
	// nil the status, resolution and fee fields it set are persisted; on error
	// nothing changes. Concurrent Resolve calls on one id run one at a time.
	// Ledger work inside fn must use the ctx passed to fn so it joins the
	// same unit of work as the status write.
	Resolve(ctx context.Context, id string, fn func(ctx context.Context, r *Request) error) (Request, error)
}

// PostgresRepository stores fund requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const requestColumns = `id, requester_id, requester_type, counterparty_id, type, amount, status,
	withdrawal_details, proof_reference, remarks, fee, created_at, resolved_at, resolved_by`

// Create inserts a pending request.
func (r *PostgresRepository) Create(ctx context.Context, req Request) error {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return apperr.Validationf("request id %q: %v", req.ID, err)
	}
	var details []byte
	if req.Withdrawal != nil {
		if details, err = json.Marshal(req.Withdrawal); err != nil {
			return err
		}
	}
	_, err = r.db.Exec(ctx, `INSERT INTO fund_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, req.RequesterID, string(req.RequesterType), req.CounterpartyID, string(req.Type), req.Amount,
		string(req.Status), details, req.ProofReference, req.Remarks, req.Fee, req.CreatedAt.UTC(),
		req.ResolvedAt, req.ResolvedBy)
	return err
}

// Get fetches one request.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, apperr.NotFoundf("fund request %s", id)
	}
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM fund_requests WHERE id = $1`, reqID)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, apperr.NotFoundf("fund request %s", id)
	}
	return req, err
}

// List returns requests matching filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Request, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.RequesterID != "" {
		add("requester_id = $%d", filter.RequesterID)
	}
	if filter.CounterpartyID != "" {
		add("counterparty_id = $%d", filter.CounterpartyID)
	}
	if filter.RequesterType != "" {
		add("requester_type = $%d", string(filter.RequesterType))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	query := `SELECT ` + requestColumns + ` FROM fund_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Resolve locks the row for the duration of fn so two approvers of the same
// request serialize on the database. fn receives a context bound to the
// transaction, so ledger reads and the posting run on the connection that
// holds the row lock and commit together with the status change.
func (r *PostgresRepository) Resolve(ctx context.Context, id string, fn func(ctx context.Context, r *Request) error) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, apperr.NotFoundf("fund request %s", id)
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM fund_requests WHERE id = $1 FOR UPDATE`, reqID)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, apperr.NotFoundf("fund request %s", id)
	}
	if err != nil {
		return Request{}, err
	}
	if err := fn(ledger.WithTx(ctx, tx), &req); err != nil {
		return Request{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE fund_requests
		SET status = $2, remarks = $3, fee = $4, resolved_at = $5, resolved_by = $6
		WHERE id = $1`,
		reqID, string(req.Status), req.Remarks, req.Fee, req.ResolvedAt, req.ResolvedBy); err != nil {
		return Request{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}
	return req, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (Request, error) {
	var (
		req        Request
		id         uuid.UUID
		ownerType  string
		typ        string
		status     string
		details    []byte
		createdAt  time.Time
		resolvedAt *time.Time
	)
	if err := row.Scan(&id, &req.RequesterID, &ownerType, &req.CounterpartyID, &typ, &req.Amount, &status,
		&details, &req.ProofReference, &req.Remarks, &req.Fee, &createdAt, &resolvedAt, &req.ResolvedBy); err != nil {
		return Request{}, err
	}
	req.ID = id.String()
	req.RequesterType = principal.Kind(ownerType)
	req.Type = Type(typ)
	req.Status = Status(status)
	req.CreatedAt = createdAt.UTC()
	if resolvedAt != nil {
		t := resolvedAt.UTC()
		req.ResolvedAt = &t
	}
	if len(details) > 0 {
		var d WithdrawalDetails
		if err := json.Unmarshal(details, &d); err != nil {
			return Request{}, fmt.Errorf("decode withdrawal details: %w", err)
		}
		req.Withdrawal = &d
	}
	return req, nil
}
