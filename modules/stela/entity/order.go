package entity

import (
	"time"

	"github.com/holiman/uint256"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusSettled   OrderStatus = "settled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// ValidTransition reports whether an order may move from its current
// status to next. Pending orders may be matched, cancelled or expired;
// matched orders may only settle or fall back to expiry.
func (s OrderStatus) ValidTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusMatched || next == OrderStatusCancelled || next == OrderStatusExpired
	case OrderStatusMatched:
		return next == OrderStatusSettled || next == OrderStatusExpired
	default:
		return false
	}
}

// Order is an off-chain signed intent to open a loan. The asset lists
// are a snapshot taken at submission time and are what the settlement
// call replays on-chain.
type Order struct {
	Id        int64
	OrderHash string
	Creator   string
	IsBorrow  bool

	DebtAssets       []Asset
	InterestAssets   []Asset
	CollateralAssets []Asset

	Duration    uint64
	Deadline    time.Time
	MultiLender bool

	Nonce     *uint256.Int
	Signature Signature
	Status    OrderStatus

	InscriptionId *uint256.Int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusSettled   OfferStatus = "settled"
	OfferStatusCancelled OfferStatus = "cancelled"
	OfferStatusExpired   OfferStatus = "expired"
)

// OrderOffer is a lender's signed acceptance of an order. At most one
// offer per order may be pending at a time.
type OrderOffer struct {
	Id        int64
	OrderId   int64
	OrderHash string
	Lender    string

	// FillBps is the accepted fraction of the order's debt in basis
	// points, 10000 meaning a full fill.
	FillBps uint64

	Nonce     *uint256.Int
	Signature Signature
	Status    OfferStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}
