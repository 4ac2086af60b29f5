package store

import (
	"time"

	"github.com/google/uuid"
)

// Deposit is one row per observed Deposit log, per spec.md §3.
type Deposit struct {
	DepositID         uuid.UUID
	ChainID           string
	TransactionHash   string
	BlockNumber       uint64
	TokenAddress      string
	FromAddress       string
	ToAddress         string
	Amount            string // decimal text; parse with (*big.Int).SetString
	Nonce             string // decimal text; parse with (*big.Int).SetString
	Processed         bool
	FinalityConfirmed bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDeposit is the input shape for InsertDeposit: everything the
// Ingestor knows about a freshly decoded log, before the store assigns
// defaults (processed=false, finality_confirmed=false, timestamps).
type NewDeposit struct {
	ChainID         string
	TransactionHash string
	BlockNumber     uint64
	TokenAddress    string
	FromAddress     string
	ToAddress       string
	Amount          string
	Nonce           string
}

// Checkpoint is the highest chain_id block number the Ingestor has
// observed, per spec.md §3.
type Checkpoint struct {
	ChainID     string
	BlockNumber uint64
	UpdatedAt   time.Time
}
