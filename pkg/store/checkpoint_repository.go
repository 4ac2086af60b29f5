package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CheckpointRepository handles the per-chain ingestion checkpoint.
type CheckpointRepository struct {
	client *Client
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(client *Client) *CheckpointRepository {
	return &CheckpointRepository{client: client}
}

// GetCheckpoint returns the highest observed block for chainID, or 0 if
// none exists.
func (r *CheckpointRepository) GetCheckpoint(ctx context.Context, chainID string) (uint64, error) {
	const query = `SELECT block_number FROM checkpoints WHERE chain_id = $1`

	var block uint64
	err := r.client.db.QueryRowContext(ctx, query, chainID).Scan(&block)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return block, nil
}

// SetCheckpoint upserts the checkpoint for chainID. The store does not
// enforce monotonicity; callers must pass the latest observed block, per
// spec.md §4.1.
func (r *CheckpointRepository) SetCheckpoint(ctx context.Context, chainID string, block uint64) error {
	const query = `
		INSERT INTO checkpoints (chain_id, block_number, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chain_id) DO UPDATE
		SET block_number = EXCLUDED.block_number, updated_at = now()`

	if _, err := r.client.db.ExecContext(ctx, query, chainID, block); err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}
