package httphandler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/verifier"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

type submitOrderRequest struct {
	Creator          string           `json:"creator"`
	IsBorrow         bool             `json:"is_borrow"`
	DebtAssets       []entity.Asset   `json:"debt_assets"`
	InterestAssets   []entity.Asset   `json:"interest_assets"`
	CollateralAssets []entity.Asset   `json:"collateral_assets"`
	Duration         uint64           `json:"duration"`
	Deadline         int64            `json:"deadline"`
	MultiLender      bool             `json:"multi_lender"`
	Nonce            string           `json:"nonce"`
	Signature        entity.Signature `json:"signature"`
}

// parseNonce accepts both hex and decimal encodings.
func parseNonce(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return starkutils.HexToU256(raw)
	}
	return starkutils.DecToU256(raw)
}

func invalidArgument(err error, message string) error {
	return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, err.Error()), message)
}

func (h *handler) submitOrderHandler(ctx *fiber.Ctx) error {
	var req submitOrderRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil {
		return invalidArgument(err, "malformed order")
	}

	creator, err := starkutils.NormalizeAddressHex(req.Creator)
	if err != nil {
		return invalidArgument(err, "invalid creator address")
	}
	nonce, err := parseNonce(req.Nonce)
	if err != nil {
		return invalidArgument(err, "invalid nonce")
	}
	if len(req.Signature) == 0 {
		return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, "signature missing"), "signature is required")
	}
	deadline := time.Unix(req.Deadline, 0).UTC()
	if !deadline.After(time.Now()) {
		return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, "deadline in the past"), "order deadline already passed")
	}

	order := entity.Order{
		Creator:          creator,
		IsBorrow:         req.IsBorrow,
		DebtAssets:       req.DebtAssets,
		InterestAssets:   req.InterestAssets,
		CollateralAssets: req.CollateralAssets,
		Duration:         req.Duration,
		Deadline:         deadline,
		MultiLender:      req.MultiLender,
		Nonce:            nonce,
		Signature:        req.Signature,
		Status:           entity.OrderStatusPending,
	}

	orderHash, err := verifier.OrderHash(h.verifier.ChainId(), order)
	if err != nil {
		return invalidArgument(err, "failed to hash order")
	}
	order.OrderHash = orderHash.String()

	creatorFelt, err := utils.HexToFelt(creator)
	if err != nil {
		return invalidArgument(err, "invalid creator address")
	}
	signature, err := order.Signature.Felts()
	if err != nil {
		return invalidArgument(err, "invalid signature")
	}
	if !h.verifier.VerifySignature(ctx.UserContext(), creatorFelt, orderHash, signature) {
		return errs.WithPublicMessage(errors.Wrap(errs.Unauthorized, "signature rejected"), "signature verification failed")
	}

	nonceLow, _ := starkutils.U256ToFelts(nonce)
	if check := h.verifier.VerifyNonce(ctx.UserContext(), creatorFelt, nonceLow); !check.Valid {
		return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, "nonce mismatch"), "nonce does not match on-chain value")
	}

	id, err := h.dg.CreateOrder(ctx.UserContext(), order)
	if err != nil {
		if errors.Is(err, errs.Conflict) {
			return errs.WithPublicMessage(err, "order already exists")
		}
		return errors.Wrap(err, "failed to create order")
	}

	stored, err := h.dg.GetOrder(ctx.UserContext(), id)
	if err != nil {
		return errors.Wrap(err, "failed to load created order")
	}
	return errors.WithStack(ctx.Status(http.StatusCreated).JSON(orderToResponse(*stored)))
}

func (h *handler) listOrdersHandler(ctx *fiber.Ctx) error {
	params := datagateway.ListOrdersParams{
		Limit:  int32(ctx.QueryInt("limit", 50)),
		Offset: int32(ctx.QueryInt("offset", 0)),
	}
	if status := ctx.Query("status"); status != "" {
		s := entity.OrderStatus(status)
		params.Status = &s
	}
	if creator := ctx.Query("creator"); creator != "" {
		normalized, err := starkutils.NormalizeAddressHex(creator)
		if err != nil {
			return invalidArgument(err, "invalid creator address")
		}
		params.Creator = &normalized
	}

	orders, err := h.dg.ListOrders(ctx.UserContext(), params)
	if err != nil {
		return errors.Wrap(err, "failed to list orders")
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderToResponse(order))
	}
	return errors.WithStack(ctx.JSON(listResponse[orderResponse]{Results: out}))
}

func (h *handler) getOrderHandler(ctx *fiber.Ctx) error {
	id, err := ctx.ParamsInt("orderId")
	if err != nil {
		return invalidArgument(err, "invalid order id")
	}
	order, err := h.dg.GetOrder(ctx.UserContext(), int64(id))
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errs.WithPublicMessage(err, "order not found")
		}
		return errors.Wrap(err, "failed to load order")
	}
	return errors.WithStack(ctx.JSON(orderToResponse(*order)))
}

type cancelOrderRequest struct {
	Creator string `json:"creator"`
}

func (h *handler) cancelOrderHandler(ctx *fiber.Ctx) error {
	id, err := ctx.ParamsInt("orderId")
	if err != nil {
		return invalidArgument(err, "invalid order id")
	}
	var req cancelOrderRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil {
		return invalidArgument(err, "malformed request")
	}
	creator, err := starkutils.NormalizeAddressHex(req.Creator)
	if err != nil {
		return invalidArgument(err, "invalid creator address")
	}

	order, err := h.dg.GetOrder(ctx.UserContext(), int64(id))
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errs.WithPublicMessage(err, "order not found")
		}
		return errors.Wrap(err, "failed to load order")
	}
	if order.Creator != creator {
		return errs.WithPublicMessage(errors.Wrap(errs.Unauthorized, "not the order creator"), "only the creator may cancel an order")
	}
	if order.Status != entity.OrderStatusPending {
		return errs.WithPublicMessage(errors.Wrapf(errs.Conflict, "order is %s", order.Status), "only pending orders can be cancelled")
	}

	changed, err := h.dg.UpdateOrderStatus(ctx.UserContext(), order.Id, entity.OrderStatusPending, entity.OrderStatusCancelled)
	if err != nil {
		return errors.Wrap(err, "failed to cancel order")
	}
	if !changed {
		return errs.WithPublicMessage(errors.Wrap(errs.Conflict, "order state changed"), "order is no longer pending")
	}
	return errors.WithStack(ctx.JSON(map[string]any{"ok": true}))
}
