package httphandler

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

func (h *handler) listInscriptionsHandler(ctx *fiber.Ctx) error {
	params := datagateway.ListInscriptionsParams{
		Limit:  int32(ctx.QueryInt("limit", 50)),
		Offset: int32(ctx.QueryInt("offset", 0)),
	}
	if status := ctx.Query("status"); status != "" {
		s := entity.InscriptionStatus(status)
		params.Status = &s
	}
	if address := ctx.Query("address"); address != "" {
		normalized, err := starkutils.NormalizeAddressHex(address)
		if err != nil {
			return invalidArgument(err, "invalid address")
		}
		params.Address = &normalized
	}

	inscriptions, err := h.dg.ListInscriptions(ctx.UserContext(), params)
	if err != nil {
		return errors.Wrap(err, "failed to list inscriptions")
	}
	out := make([]inscriptionResponse, 0, len(inscriptions))
	for _, inscription := range inscriptions {
		out = append(out, inscriptionToResponse(inscription))
	}
	return errors.WithStack(ctx.JSON(listResponse[inscriptionResponse]{Results: out}))
}

func (h *handler) getInscriptionHandler(ctx *fiber.Ctx) error {
	id, err := starkutils.HexToU256(ctx.Params("inscriptionId"))
	if err != nil {
		return invalidArgument(err, "invalid inscription id")
	}
	inscription, err := h.dg.GetInscription(ctx.UserContext(), id)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errs.WithPublicMessage(err, "inscription not found")
		}
		return errors.Wrap(err, "failed to load inscription")
	}
	return errors.WithStack(ctx.JSON(inscriptionToResponse(*inscription)))
}

func (h *handler) listInscriptionEventsHandler(ctx *fiber.Ctx) error {
	id, err := starkutils.HexToU256(ctx.Params("inscriptionId"))
	if err != nil {
		return invalidArgument(err, "invalid inscription id")
	}
	events, err := h.dg.ListInscriptionEvents(ctx.UserContext(), id)
	if err != nil {
		return errors.Wrap(err, "failed to list inscription events")
	}
	return errors.WithStack(ctx.JSON(listResponse[entity.InscriptionEvent]{Results: events}))
}
