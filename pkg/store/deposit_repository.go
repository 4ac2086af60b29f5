package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// DepositRepository handles deposit-record persistence, per spec.md §4.1.
type DepositRepository struct {
	client *Client
}

// NewDepositRepository creates a new deposit repository.
func NewDepositRepository(client *Client) *DepositRepository {
	return &DepositRepository{client: client}
}

// InsertDeposit inserts a new deposit row. On a uniqueness violation of
// (chain_id, nonce) it returns success without modifying the existing
// row — idempotent ingestion per spec.md §3/§4.1. A non-numeric amount
// or nonce is rejected with ErrInvalidRecord before any query runs.
func (r *DepositRepository) InsertDeposit(ctx context.Context, in NewDeposit) error {
	if !isNonNegativeDecimal(in.Amount) || !isNonNegativeDecimal(in.Nonce) {
		return ErrInvalidRecord
	}

	const query = `
		INSERT INTO deposits (
			deposit_id, chain_id, transaction_hash, block_number,
			token_address, from_address, to_address, amount, nonce,
			processed, finality_confirmed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, false)
		ON CONFLICT (chain_id, nonce) DO NOTHING`

	_, err := r.client.db.ExecContext(ctx, query,
		uuid.New(), in.ChainID, in.TransactionHash, in.BlockNumber,
		in.TokenAddress, in.FromAddress, in.ToAddress, in.Amount, in.Nonce,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	return nil
}

// ListDeliverable returns all rows where processed = false AND
// finality_confirmed = true. Ordering is stable within a call (by chain
// id, then block number, then deposit id), per spec.md §4.1.
func (r *DepositRepository) ListDeliverable(ctx context.Context) ([]Deposit, error) {
	const query = `
		SELECT deposit_id, chain_id, transaction_hash, block_number,
		       token_address, from_address, to_address, amount, nonce,
		       processed, finality_confirmed, created_at, updated_at
		FROM deposits
		WHERE processed = false AND finality_confirmed = true
		ORDER BY chain_id, block_number, deposit_id`

	rows, err := r.client.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliverable deposits: %w", err)
	}
	defer rows.Close()

	var out []Deposit
	for rows.Next() {
		var d Deposit
		if err := rows.Scan(
			&d.DepositID, &d.ChainID, &d.TransactionHash, &d.BlockNumber,
			&d.TokenAddress, &d.FromAddress, &d.ToAddress, &d.Amount, &d.Nonce,
			&d.Processed, &d.FinalityConfirmed, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deposit row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkDelivered sets processed = true (and, per spec.md §4.5's final
// step, finality_confirmed = true unconditionally) and touches
// updated_at.
func (r *DepositRepository) MarkDelivered(ctx context.Context, depositID uuid.UUID) error {
	const query = `
		UPDATE deposits
		SET processed = true, finality_confirmed = true, updated_at = now()
		WHERE deposit_id = $1`

	res, err := r.client.db.ExecContext(ctx, query, depositID)
	if err != nil {
		return fmt.Errorf("failed to mark deposit delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BulkConfirmFinality sets finality_confirmed = true for every row with
// the given chain_id and block_number <= horizon that isn't already
// confirmed. Returns the number of rows updated.
func (r *DepositRepository) BulkConfirmFinality(ctx context.Context, chainID string, horizon uint64) (int64, error) {
	const query = `
		UPDATE deposits
		SET finality_confirmed = true, updated_at = now()
		WHERE chain_id = $1 AND block_number <= $2 AND finality_confirmed = false`

	res, err := r.client.db.ExecContext(ctx, query, chainID, horizon)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm finality: %w", err)
	}
	return res.RowsAffected()
}

// isNonNegativeDecimal reports whether s parses as a non-negative
// arbitrary-precision integer, per spec.md §3's validation rule for
// amount and nonce.
func isNonNegativeDecimal(s string) bool {
	if s == "" {
		return false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return false
	}
	return n.Sign() >= 0
}
