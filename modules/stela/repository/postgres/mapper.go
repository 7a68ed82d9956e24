package postgres

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

// All u256 columns hold the canonical lowercase 0x-prefixed 64-digit hex
// form so that string equality in SQL matches value equality.

func u256ToDB(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := starkutils.U256ToHex(v)
	return &s
}

func u256FromDB(s *string) (*uint256.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, err := starkutils.HexToU256(*s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid stored u256")
	}
	return v, nil
}

type inscriptionModel struct {
	Id                   string
	Creator              string
	Borrower             string
	Lender               string
	Locker               *string
	MultiLender          bool
	Duration             int64
	Deadline             *time.Time
	Status               string
	IssuedDebtPercentage *string
	Shares               *string
	DebtAssetCount       int64
	InterestAssetCount   int64
	CollateralAssetCount int64
	CreatedBlock         int64
	SignedAt             *time.Time
	UpdatedAt            time.Time
}

func mapInscriptionModelToType(m inscriptionModel) (entity.Inscription, error) {
	id, err := starkutils.HexToU256(m.Id)
	if err != nil {
		return entity.Inscription{}, errors.Wrap(err, "invalid stored inscription id")
	}
	pct, err := u256FromDB(m.IssuedDebtPercentage)
	if err != nil {
		return entity.Inscription{}, errors.WithStack(err)
	}
	shares, err := u256FromDB(m.Shares)
	if err != nil {
		return entity.Inscription{}, errors.WithStack(err)
	}

	out := entity.Inscription{
		Id:                   id,
		Creator:              m.Creator,
		Borrower:             m.Borrower,
		Lender:               m.Lender,
		Locker:               m.Locker,
		MultiLender:          m.MultiLender,
		Duration:             uint64(m.Duration),
		Status:               entity.InscriptionStatus(m.Status),
		IssuedDebtPercentage: pct,
		Shares:               shares,
		DebtAssetCount:       uint64(m.DebtAssetCount),
		InterestAssetCount:   uint64(m.InterestAssetCount),
		CollateralAssetCount: uint64(m.CollateralAssetCount),
		CreatedBlock:         uint64(m.CreatedBlock),
		SignedAt:             m.SignedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	if m.Deadline != nil {
		out.Deadline = *m.Deadline
	}
	return out, nil
}

type assetModel struct {
	Address   string
	AssetType string
	Value     string
	TokenId   string
}

func mapAssetModelToType(m assetModel) (entity.Asset, error) {
	assetType, err := entity.ParseAssetType(m.AssetType)
	if err != nil {
		return entity.Asset{}, errors.Wrap(err, "invalid stored asset type")
	}
	value, err := starkutils.HexToU256(m.Value)
	if err != nil {
		return entity.Asset{}, errors.Wrap(err, "invalid stored asset value")
	}
	tokenId, err := starkutils.HexToU256(m.TokenId)
	if err != nil {
		return entity.Asset{}, errors.Wrap(err, "invalid stored asset token id")
	}
	return entity.Asset{
		Address: m.Address,
		Type:    assetType,
		Value:   value,
		TokenId: tokenId,
	}, nil
}

// orderAssetsDoc is the JSONB snapshot column of an order.
type orderAssetsDoc struct {
	Debt       []entity.Asset `json:"debt"`
	Interest   []entity.Asset `json:"interest"`
	Collateral []entity.Asset `json:"collateral"`
}

type orderModel struct {
	Id            int64
	OrderHash     string
	Creator       string
	IsBorrow      bool
	Assets        []byte
	Duration      int64
	Deadline      time.Time
	MultiLender   bool
	Nonce         string
	Signature     []byte
	Status        string
	InscriptionId *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func mapOrderModelToType(m orderModel) (entity.Order, error) {
	var assets orderAssetsDoc
	if err := json.Unmarshal(m.Assets, &assets); err != nil {
		return entity.Order{}, errors.Wrap(err, "invalid stored order assets")
	}
	var signature entity.Signature
	if err := json.Unmarshal(m.Signature, &signature); err != nil {
		return entity.Order{}, errors.Wrap(err, "invalid stored order signature")
	}
	nonce, err := starkutils.HexToU256(m.Nonce)
	if err != nil {
		return entity.Order{}, errors.Wrap(err, "invalid stored order nonce")
	}
	inscriptionId, err := u256FromDB(m.InscriptionId)
	if err != nil {
		return entity.Order{}, errors.WithStack(err)
	}
	return entity.Order{
		Id:               m.Id,
		OrderHash:        m.OrderHash,
		Creator:          m.Creator,
		IsBorrow:         m.IsBorrow,
		DebtAssets:       assets.Debt,
		InterestAssets:   assets.Interest,
		CollateralAssets: assets.Collateral,
		Duration:         uint64(m.Duration),
		Deadline:         m.Deadline,
		MultiLender:      m.MultiLender,
		Nonce:            nonce,
		Signature:        signature,
		Status:           entity.OrderStatus(m.Status),
		InscriptionId:    inscriptionId,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}

type offerModel struct {
	Id        int64
	OrderId   int64
	OrderHash string
	Lender    string
	FillBps   int64
	Nonce     string
	Signature []byte
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func mapOfferModelToType(m offerModel) (entity.OrderOffer, error) {
	var signature entity.Signature
	if err := json.Unmarshal(m.Signature, &signature); err != nil {
		return entity.OrderOffer{}, errors.Wrap(err, "invalid stored offer signature")
	}
	nonce, err := starkutils.HexToU256(m.Nonce)
	if err != nil {
		return entity.OrderOffer{}, errors.Wrap(err, "invalid stored offer nonce")
	}
	return entity.OrderOffer{
		Id:        m.Id,
		OrderId:   m.OrderId,
		OrderHash: m.OrderHash,
		Lender:    m.Lender,
		FillBps:   uint64(m.FillBps),
		Nonce:     nonce,
		Signature: signature,
		Status:    entity.OfferStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
