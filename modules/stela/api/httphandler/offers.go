package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/verifier"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

type submitOfferRequest struct {
	Lender    string           `json:"lender"`
	FillBps   uint64           `json:"fill_bps"`
	Nonce     string           `json:"nonce"`
	Signature entity.Signature `json:"signature"`
}

func (h *handler) submitOfferHandler(ctx *fiber.Ctx) error {
	orderId, err := ctx.ParamsInt("orderId")
	if err != nil {
		return invalidArgument(err, "invalid order id")
	}
	var req submitOfferRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil {
		return invalidArgument(err, "malformed offer")
	}

	lender, err := starkutils.NormalizeAddressHex(req.Lender)
	if err != nil {
		return invalidArgument(err, "invalid lender address")
	}
	nonce, err := parseNonce(req.Nonce)
	if err != nil {
		return invalidArgument(err, "invalid nonce")
	}
	if req.FillBps == 0 || req.FillBps > 10_000 {
		return errs.WithPublicMessage(errors.Wrapf(errs.InvalidArgument, "fill_bps %d", req.FillBps), "fill_bps must be within (0, 10000]")
	}
	if len(req.Signature) == 0 {
		return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, "signature missing"), "signature is required")
	}

	order, err := h.dg.GetOrder(ctx.UserContext(), int64(orderId))
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errs.WithPublicMessage(err, "order not found")
		}
		return errors.Wrap(err, "failed to load order")
	}
	if order.Status != entity.OrderStatusPending {
		return errs.WithPublicMessage(errors.Wrapf(errs.Conflict, "order is %s", order.Status), "order is not open for offers")
	}
	if !order.Deadline.After(time.Now()) {
		return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, "order deadline passed"), "order has expired")
	}

	offer := entity.OrderOffer{
		OrderId:   order.Id,
		OrderHash: order.OrderHash,
		Lender:    lender,
		FillBps:   req.FillBps,
		Nonce:     nonce,
		Signature: req.Signature,
		Status:    entity.OfferStatusPending,
	}

	orderHash, err := utils.HexToFelt(order.OrderHash)
	if err != nil {
		return errors.Wrap(err, "invalid stored order hash")
	}
	offerHash, err := verifier.OfferHash(h.verifier.ChainId(), orderHash, offer)
	if err != nil {
		return invalidArgument(err, "failed to hash offer")
	}
	lenderFelt, err := utils.HexToFelt(lender)
	if err != nil {
		return invalidArgument(err, "invalid lender address")
	}
	signature, err := offer.Signature.Felts()
	if err != nil {
		return invalidArgument(err, "invalid signature")
	}
	if !h.verifier.VerifySignature(ctx.UserContext(), lenderFelt, offerHash, signature) {
		return errs.WithPublicMessage(errors.Wrap(errs.Unauthorized, "signature rejected"), "signature verification failed")
	}

	nonceLow, _ := starkutils.U256ToFelts(nonce)
	if check := h.verifier.VerifyNonce(ctx.UserContext(), lenderFelt, nonceLow); !check.Valid {
		return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, "nonce mismatch"), "nonce does not match on-chain value")
	}

	id, err := h.dg.CreateOffer(ctx.UserContext(), offer)
	if err != nil {
		if errors.Is(err, errs.Conflict) {
			return errs.WithPublicMessage(err, "order already has a pending offer")
		}
		return errors.Wrap(err, "failed to create offer")
	}

	// Accepting an offer moves the order to matched; the settlement bot
	// picks the pair up from there.
	if _, err := h.dg.UpdateOrderStatus(ctx.UserContext(), order.Id, entity.OrderStatusPending, entity.OrderStatusMatched); err != nil {
		return errors.Wrap(err, "failed to mark order matched")
	}

	offer.Id = id
	return errors.WithStack(ctx.Status(http.StatusCreated).JSON(offerToResponse(offer)))
}

func (h *handler) listOffersHandler(ctx *fiber.Ctx) error {
	orderId, err := ctx.ParamsInt("orderId")
	if err != nil {
		return invalidArgument(err, "invalid order id")
	}
	offers, err := h.dg.ListOffersByOrder(ctx.UserContext(), int64(orderId))
	if err != nil {
		return errors.Wrap(err, "failed to list offers")
	}
	out := make([]offerResponse, 0, len(offers))
	for _, offer := range offers {
		out = append(out, offerToResponse(offer))
	}
	return errors.WithStack(ctx.JSON(listResponse[offerResponse]{Results: out}))
}
