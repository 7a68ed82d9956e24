package datagateway

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
)

type StelaDataGateway interface {
	BeginStelaTx(ctx context.Context) (StelaDataGatewayWithTx, error)

	// Inscriptions
	CreateInscription(ctx context.Context, inscription entity.Inscription) error
	GetInscription(ctx context.Context, id *uint256.Int) (*entity.Inscription, error)
	ListInscriptions(ctx context.Context, params ListInscriptionsParams) ([]entity.Inscription, error)
	// MarkInscriptionSigned records a fill. It only touches rows whose
	// status is still open or partial; terminal inscriptions are left as-is.
	MarkInscriptionSigned(ctx context.Context, params MarkInscriptionSignedParams) error
	SetInscriptionStatus(ctx context.Context, id *uint256.Int, status entity.InscriptionStatus) error
	ExpireOpenInscriptions(ctx context.Context, now time.Time) (int64, error)
	GetLiquidatableInscriptions(ctx context.Context, now time.Time, limit int32) ([]entity.Inscription, error)

	// Inscription events. CreateInscriptionEvent reports whether the row
	// was actually inserted so redelivered events do not reapply side
	// effects such as share balance changes.
	CreateInscriptionEvent(ctx context.Context, event entity.InscriptionEvent) (inserted bool, err error)
	ListInscriptionEvents(ctx context.Context, inscriptionId *uint256.Int) ([]entity.InscriptionEvent, error)

	// Assets
	CreateAssets(ctx context.Context, inscriptionId *uint256.Int, role entity.AssetRole, assets []entity.Asset) error

	// Share balances
	IncrementShareBalance(ctx context.Context, inscriptionId *uint256.Int, holder string, amount *uint256.Int) error
	DecrementShareBalance(ctx context.Context, inscriptionId *uint256.Int, holder string, amount *uint256.Int) error

	// Ingestion cursor and bot lock, single-row key/value overwrites.
	GetCursor(ctx context.Context) (uint64, error)
	SetCursor(ctx context.Context, blockNumber uint64) error
	// TryAcquireBotLock atomically claims the bot lock when it is free or
	// older than ttl. Exactly one of any set of concurrent callers wins.
	TryAcquireBotLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error)
	ClearBotLock(ctx context.Context) error

	// Orders
	CreateOrder(ctx context.Context, order entity.Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (*entity.Order, error)
	GetOrderByHash(ctx context.Context, orderHash string) (*entity.Order, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]entity.Order, error)
	// UpdateOrderStatus applies status only when the stored status still
	// equals from, and reports whether the row changed.
	UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (bool, error)
	ExpirePendingOrders(ctx context.Context, now time.Time) (int64, error)
	ListMatchedOrders(ctx context.Context, limit int32) ([]entity.Order, error)

	// Offers
	CreateOffer(ctx context.Context, offer entity.OrderOffer) (int64, error)
	GetPendingOfferByOrder(ctx context.Context, orderId int64) (*entity.OrderOffer, error)
	ListOffersByOrder(ctx context.Context, orderId int64) ([]entity.OrderOffer, error)
	UpdateOfferStatus(ctx context.Context, id int64, to entity.OfferStatus) error
}

type StelaDataGatewayWithTx interface {
	StelaDataGateway
	Tx
}

type ListInscriptionsParams struct {
	// Status filters by stored status, except "expired" which is computed
	// as open past deadline.
	Status  *entity.InscriptionStatus
	Address *string
	Limit   int32
	Offset  int32
}

type MarkInscriptionSignedParams struct {
	Id                   *uint256.Int
	Borrower             string
	Lender               string
	IssuedDebtPercentage *uint256.Int
	Shares               *uint256.Int
	Status               entity.InscriptionStatus
	Locker               *string
	SignedAt             time.Time
}

type ListOrdersParams struct {
	Status  *entity.OrderStatus
	Creator *string
	Limit   int32
	Offset  int32
}
