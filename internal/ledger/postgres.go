package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

const uniqueViolation = "23505"

const entryColumns = `id, wallet_id, owner_type, seq, direction, kind, amount, reason,
        related_request_id, reference_id, balance_after, created_at`

// PostgresStore persists wallets and append-only entries in PostgreSQL. Writers
// lock the touched wallet rows with FOR UPDATE in id order.
type PostgresStore struct {
	db *pgxpool.Pool
}

type txKey struct{}

// WithTx binds tx to ctx. PostgresStore calls made with the returned context
// run on tx and Commit writes inside a savepoint of it, so a caller holding
// its own row locks never needs a second pool connection and its writes and
// the posting commit or roll back together.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

func (s *PostgresStore) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.db
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenWallet inserts the wallet row; a second insert for the same id fails.
func (s *PostgresStore) OpenWallet(ctx context.Context, wallet Wallet) error {
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn(ctx).Exec(ctx, `INSERT INTO wallets (id, owner_type, parent_admin_id, created_at)
        VALUES ($1, $2, NULLIF($3, ''), $4)`, wallet.ID, string(wallet.OwnerType), wallet.ParentAdminID, wallet.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("wallet %s: %w", wallet.ID, apperr.ErrDuplicate)
	}
	return err
}

// Wallet fetches one wallet row.
func (s *PostgresStore) Wallet(ctx context.Context, id string) (Wallet, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT id, owner_type, COALESCE(parent_admin_id, ''), created_at FROM wallets WHERE id = $1`, id)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, apperr.NotFoundf("wallet %s", id)
	}
	return w, err
}

// ListWallets returns wallets matching the filter ordered by id.
func (s *PostgresStore) ListWallets(ctx context.Context, filter WalletFilter) ([]Wallet, error) {
	query := `SELECT id, owner_type, COALESCE(parent_admin_id, ''), created_at FROM wallets WHERE 1=1`
	args := []any{}
	if filter.OwnerType != "" {
		args = append(args, string(filter.OwnerType))
		query += fmt.Sprintf(" AND owner_type = $%d", len(args))
	}
	if filter.ParentAdminID != "" {
		args = append(args, filter.ParentAdminID)
		query += fmt.Sprintf(" AND parent_admin_id = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Balance returns the newest entry's balance_after, or zero for a fresh wallet.
func (s *PostgresStore) Balance(ctx context.Context, walletID string) (int64, error) {
	const query = `
        SELECT COALESCE((
            SELECT e.balance_after FROM ledger_entries e
            WHERE e.wallet_id = w.id ORDER BY e.seq DESC LIMIT 1), 0)
        FROM wallets w
        WHERE w.id = $1`
	var balance int64
	if err := s.conn(ctx).QueryRow(ctx, query, walletID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFoundf("wallet %s", walletID)
		}
		return 0, err
	}
	return balance, nil
}

// Entries lists a wallet's entries in sequence order within the filter window.
func (s *PostgresStore) Entries(ctx context.Context, walletID string, filter EntryFilter) ([]Entry, error) {
	if _, err := s.Wallet(ctx, walletID); err != nil {
		return nil, err
	}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE wallet_id = $1`
	args := []any{walletID}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Entry fetches a single entry by id.
func (s *PostgresStore) Entry(ctx context.Context, entryID string) (Entry, error) {
	id, err := uuid.Parse(entryID)
	if err != nil {
		return Entry{}, apperr.NotFoundf("entry %s", entryID)
	}
	e, err := scanEntry(s.conn(ctx).QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, apperr.NotFoundf("entry %s", entryID)
	}
	return e, err
}

// Posted reports whether a posting with key was committed.
func (s *PostgresStore) Posted(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_postings WHERE key = $1)`, key).Scan(&exists)
	return exists, err
}

// Commit writes every leg of the posting in one transaction, or in a
// savepoint when ctx carries a transaction from WithTx.
func (s *PostgresStore) Commit(ctx context.Context, posting Posting) ([]Entry, error) {
	if err := validatePosting(posting); err != nil {
		return nil, err
	}

	tx, err := s.conn(ctx).Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	if posting.Key != "" {
		tag, err := tx.Exec(ctx, `INSERT INTO ledger_postings (key, created_at) VALUES ($1, $2)
            ON CONFLICT (key) DO NOTHING`, posting.Key, now)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("posting %s: %w", posting.Key, apperr.ErrDuplicate)
		}
	}

	heads, err := lockHeads(ctx, tx, posting)
	if err != nil {
		return nil, err
	}

	entries, err := plan(posting, heads, now)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.MustParse(e.ID), e.WalletID, string(e.OwnerType), e.Seq, string(e.Direction), string(e.Kind),
			e.Amount, e.Reason, e.RelatedRequestID, e.ReferenceID, e.BalanceAfter, e.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// lockHeads takes the row locks of every touched wallet in id order and reads
// each wallet's newest sequence number and balance.
func lockHeads(ctx context.Context, tx pgx.Tx, posting Posting) (map[string]*head, error) {
	seen := map[string]struct{}{}
	var ids []string
	for _, leg := range posting.Legs {
		if _, ok := seen[leg.WalletID]; ok {
			continue
		}
		seen[leg.WalletID] = struct{}{}
		ids = append(ids, leg.WalletID)
	}
	sort.Strings(ids)

	heads := make(map[string]*head, len(ids))
	rows, err := tx.Query(ctx, `SELECT id, owner_type FROM wallets WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id, ownerType string
		if err := rows.Scan(&id, &ownerType); err != nil {
			rows.Close()
			return nil, err
		}
		heads[id] = &head{ownerType: principal.Kind(ownerType)}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := heads[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.NotFoundf("wallet %s", strings.Join(missing, ", "))
	}

	for _, id := range ids {
		h := heads[id]
		err := tx.QueryRow(ctx, `SELECT seq, balance_after FROM ledger_entries
            WHERE wallet_id = $1 ORDER BY seq DESC LIMIT 1`, id).Scan(&h.seq, &h.balance)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return heads, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (Wallet, error) {
	var (
		w         Wallet
		ownerType string
	)
	if err := row.Scan(&w.ID, &ownerType, &w.ParentAdminID, &w.CreatedAt); err != nil {
		return Wallet{}, err
	}
	w.OwnerType = principal.Kind(ownerType)
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                          Entry
		id                         uuid.UUID
		ownerType, direction, kind string
	)
	if err := row.Scan(&id, &e.WalletID, &ownerType, &e.Seq, &direction, &kind, &e.Amount, &e.Reason,
		&e.RelatedRequestID, &e.ReferenceID, &e.BalanceAfter, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.ID = id.String()
	e.OwnerType = principal.Kind(ownerType)
	e.Direction = Direction(direction)
	e.Kind = Kind(kind)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
