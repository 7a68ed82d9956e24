package entity

import (
	"time"

	"github.com/holiman/uint256"
)

type InscriptionStatus string

const (
	InscriptionStatusOpen       InscriptionStatus = "open"
	InscriptionStatusPartial    InscriptionStatus = "partial"
	InscriptionStatusFilled     InscriptionStatus = "filled"
	InscriptionStatusCancelled  InscriptionStatus = "cancelled"
	InscriptionStatusRepaid     InscriptionStatus = "repaid"
	InscriptionStatusLiquidated InscriptionStatus = "liquidated"
	InscriptionStatusExpired    InscriptionStatus = "expired"
)

// Inscription is the indexed view of one on-chain loan inscription.
// Enriched fields (MultiLender, Duration, Deadline, asset lists) may be
// absent when the contract read at ingestion time failed.
type Inscription struct {
	Id          *uint256.Int
	Creator     string
	Borrower    string
	Lender      string
	Locker      *string
	MultiLender bool
	Duration    uint64
	Deadline    time.Time
	Status      InscriptionStatus

	DebtAssetCount       uint64
	InterestAssetCount   uint64
	CollateralAssetCount uint64

	DebtAssets       []Asset
	InterestAssets   []Asset
	CollateralAssets []Asset

	IssuedDebtPercentage *uint256.Int
	Shares               *uint256.Int

	CreatedBlock uint64
	SignedAt     *time.Time
	UpdatedAt    time.Time
}

// IsLiquidatable reports whether a filled inscription's loan term has
// elapsed at the given instant.
func (i Inscription) IsLiquidatable(now time.Time) bool {
	if i.Status != InscriptionStatusFilled || i.SignedAt == nil {
		return false
	}
	return i.SignedAt.Add(time.Duration(i.Duration) * time.Second).Before(now)
}

// ShareBalance tracks ERC-1155 share ownership per inscription.
type ShareBalance struct {
	InscriptionId *uint256.Int
	Holder        string
	Balance       *uint256.Int
	UpdatedAt     time.Time
}
