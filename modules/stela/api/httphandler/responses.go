package httphandler

import (
	"time"

	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

type listResponse[T any] struct {
	Results []T `json:"results"`
}

type orderResponse struct {
	Id               int64            `json:"id"`
	OrderHash        string           `json:"order_hash"`
	Creator          string           `json:"creator"`
	IsBorrow         bool             `json:"is_borrow"`
	DebtAssets       []entity.Asset   `json:"debt_assets"`
	InterestAssets   []entity.Asset   `json:"interest_assets"`
	CollateralAssets []entity.Asset   `json:"collateral_assets"`
	Duration         uint64           `json:"duration"`
	Deadline         int64            `json:"deadline"`
	MultiLender      bool             `json:"multi_lender"`
	Nonce            string           `json:"nonce"`
	Status           string           `json:"status"`
	InscriptionId    *string          `json:"inscription_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func orderToResponse(order entity.Order) orderResponse {
	out := orderResponse{
		Id:               order.Id,
		OrderHash:        order.OrderHash,
		Creator:          order.Creator,
		IsBorrow:         order.IsBorrow,
		DebtAssets:       order.DebtAssets,
		InterestAssets:   order.InterestAssets,
		CollateralAssets: order.CollateralAssets,
		Duration:         order.Duration,
		Deadline:         order.Deadline.Unix(),
		MultiLender:      order.MultiLender,
		Nonce:            starkutils.U256ToHex(order.Nonce),
		Status:           string(order.Status),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	if order.InscriptionId != nil {
		id := starkutils.U256ToHex(order.InscriptionId)
		out.InscriptionId = &id
	}
	return out
}

type offerResponse struct {
	Id        int64     `json:"id"`
	OrderId   int64     `json:"order_id"`
	OrderHash string    `json:"order_hash"`
	Lender    string    `json:"lender"`
	FillBps   uint64    `json:"fill_bps"`
	Nonce     string    `json:"nonce"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func offerToResponse(offer entity.OrderOffer) offerResponse {
	return offerResponse{
		Id:        offer.Id,
		OrderId:   offer.OrderId,
		OrderHash: offer.OrderHash,
		Lender:    offer.Lender,
		FillBps:   offer.FillBps,
		Nonce:     starkutils.U256ToHex(offer.Nonce),
		Status:    string(offer.Status),
		CreatedAt: offer.CreatedAt,
		UpdatedAt: offer.UpdatedAt,
	}
}

type inscriptionResponse struct {
	Id                   string         `json:"id"`
	Creator              string         `json:"creator"`
	Borrower             string         `json:"borrower,omitempty"`
	Lender               string         `json:"lender,omitempty"`
	Locker               *string        `json:"locker,omitempty"`
	MultiLender          bool           `json:"multi_lender"`
	Duration             uint64         `json:"duration"`
	Deadline             *int64         `json:"deadline,omitempty"`
	Status               string         `json:"status"`
	IssuedDebtPercentage *string        `json:"issued_debt_percentage,omitempty"`
	Shares               *string        `json:"shares,omitempty"`
	DebtAssetCount       uint64         `json:"debt_asset_count"`
	InterestAssetCount   uint64         `json:"interest_asset_count"`
	CollateralAssetCount uint64         `json:"collateral_asset_count"`
	DebtAssets           []entity.Asset `json:"debt_assets,omitempty"`
	InterestAssets       []entity.Asset `json:"interest_assets,omitempty"`
	CollateralAssets     []entity.Asset `json:"collateral_assets,omitempty"`
	CreatedBlock         uint64         `json:"created_block"`
	SignedAt             *time.Time     `json:"signed_at,omitempty"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func inscriptionToResponse(inscription entity.Inscription) inscriptionResponse {
	out := inscriptionResponse{
		Id:                   starkutils.U256ToHex(inscription.Id),
		Creator:              inscription.Creator,
		Borrower:             inscription.Borrower,
		Lender:               inscription.Lender,
		Locker:               inscription.Locker,
		MultiLender:          inscription.MultiLender,
		Duration:             inscription.Duration,
		Status:               string(inscription.Status),
		DebtAssetCount:       inscription.DebtAssetCount,
		InterestAssetCount:   inscription.InterestAssetCount,
		CollateralAssetCount: inscription.CollateralAssetCount,
		DebtAssets:           inscription.DebtAssets,
		InterestAssets:       inscription.InterestAssets,
		CollateralAssets:     inscription.CollateralAssets,
		CreatedBlock:         inscription.CreatedBlock,
		SignedAt:             inscription.SignedAt,
		UpdatedAt:            inscription.UpdatedAt,
	}
	// Open inscriptions past their deadline read as expired without
	// waiting for the bot's next sweep.
	if inscription.Status == entity.InscriptionStatusOpen && !inscription.Deadline.IsZero() && inscription.Deadline.Before(time.Now()) {
		out.Status = string(entity.InscriptionStatusExpired)
	}
	if !inscription.Deadline.IsZero() {
		deadline := inscription.Deadline.Unix()
		out.Deadline = &deadline
	}
	if inscription.IssuedDebtPercentage != nil {
		pct := inscription.IssuedDebtPercentage.Dec()
		out.IssuedDebtPercentage = &pct
	}
	if inscription.Shares != nil {
		shares := inscription.Shares.Dec()
		out.Shares = &shares
	}
	return out
}
