package entity

import (
	"time"

	"github.com/holiman/uint256"
)

type EventKind string

const (
	EventKindCreated        EventKind = "created"
	EventKindSigned         EventKind = "signed"
	EventKindCancelled      EventKind = "cancelled"
	EventKindRepaid         EventKind = "repaid"
	EventKindLiquidated     EventKind = "liquidated"
	EventKindRedeemed       EventKind = "redeemed"
	EventKindTransferSingle EventKind = "transfer_single"
)

// InscriptionEvent is one normalized protocol event, both the indexer's
// internal representation and the webhook wire shape. Fields beyond the
// common header are populated per kind; enrichment fields stay nil when
// the contract read at transform time failed.
type InscriptionEvent struct {
	Kind          EventKind `json:"kind"`
	InscriptionId string    `json:"inscription_id"`
	BlockNumber   uint64    `json:"block_number"`
	TxHash        string    `json:"tx_hash"`
	Timestamp     time.Time `json:"timestamp"`

	// created
	Creator              string  `json:"creator,omitempty"`
	MultiLender          *bool   `json:"multi_lender,omitempty"`
	Duration             *uint64 `json:"duration,omitempty"`
	Deadline             *uint64 `json:"deadline,omitempty"`
	DebtAssetCount       *uint64 `json:"debt_asset_count,omitempty"`
	InterestAssetCount   *uint64 `json:"interest_asset_count,omitempty"`
	CollateralAssetCount *uint64 `json:"collateral_asset_count,omitempty"`
	DebtAssets           []Asset `json:"debt_assets,omitempty"`
	InterestAssets       []Asset `json:"interest_assets,omitempty"`
	CollateralAssets     []Asset `json:"collateral_assets,omitempty"`

	// signed
	Borrower             string            `json:"borrower,omitempty"`
	Lender               string            `json:"lender,omitempty"`
	IssuedDebtPercentage *uint256.Int      `json:"issued_debt_percentage,omitempty"`
	Shares               *uint256.Int      `json:"shares,omitempty"`
	Status               InscriptionStatus `json:"status,omitempty"`
	Locker               *string           `json:"locker,omitempty"`

	// cancelled, repaid, liquidated
	Actor string `json:"actor,omitempty"`

	// redeemed
	Redeemer string `json:"redeemer,omitempty"`

	// transfer_single
	From  string       `json:"from,omitempty"`
	To    string       `json:"to,omitempty"`
	Value *uint256.Int `json:"value,omitempty"`
}

// WebhookPayload is one POST body delivered to the receiver. Events are
// ordered as they appeared within the block.
type WebhookPayload struct {
	BlockNumber uint64             `json:"block_number"`
	Events      []InscriptionEvent `json:"events"`
	Cursor      uint64             `json:"cursor"`
}

// ApplyResult reports the outcome of applying one webhook batch.
type ApplyResult struct {
	Skipped   bool
	Processed int
	Failed    int
}
