package httphandler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
)

// maxWebhookBatch caps the number of events in one delivery.
const maxWebhookBatch = 500

type webhookResponse struct {
	Ok        bool `json:"ok"`
	Skipped   bool `json:"skipped,omitempty"`
	Processed int  `json:"processed"`
	Failed    int  `json:"failed,omitempty"`
}

// authorize compares the bearer token in constant time. Mismatched
// lengths return early; only equal-length tokens reach the compare.
func (h *handler) authorize(ctx *fiber.Ctx) bool {
	header := ctx.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	if len(token) != len(h.webhookSecret) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.webhookSecret)) == 1
}

func (h *handler) webhookHandler(ctx *fiber.Ctx) error {
	if !h.authorize(ctx) {
		return errs.WithPublicMessage(errors.Wrap(errs.Unauthorized, "invalid webhook token"), "invalid webhook token")
	}

	var payload entity.WebhookPayload
	if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
		return errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, err.Error()), "malformed payload")
	}
	if len(payload.Events) > maxWebhookBatch {
		return errs.WithPublicMessage(
			errors.Wrapf(errs.InvalidArgument, "batch has %d events", len(payload.Events)),
			"batch exceeds maximum size",
		)
	}

	result, err := h.applier.ApplyBlock(ctx.UserContext(), payload)
	if err != nil {
		return errors.Wrap(err, "failed to apply block")
	}
	if result.Skipped {
		return errors.WithStack(ctx.JSON(webhookResponse{Ok: true, Skipped: true}))
	}
	if result.Failed > 0 {
		// Cursor was not advanced; the sender is expected to redeliver.
		return errors.WithStack(ctx.Status(http.StatusInternalServerError).JSON(webhookResponse{
			Ok:        false,
			Processed: result.Processed,
			Failed:    result.Failed,
		}))
	}
	return errors.WithStack(ctx.JSON(webhookResponse{Ok: true, Processed: result.Processed}))
}

type healthResponse struct {
	Ok        bool   `json:"ok"`
	LastBlock uint64 `json:"last_block"`
}

func (h *handler) healthHandler(ctx *fiber.Ctx) error {
	cursor, err := h.dg.GetCursor(ctx.UserContext())
	if err != nil {
		return errors.Wrap(err, "failed to read cursor")
	}
	return errors.WithStack(ctx.JSON(healthResponse{Ok: true, LastBlock: cursor}))
}
