package httphandler

import (
	"context"

	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/verifier"
)

// EventApplier applies one webhook batch to storage.
type EventApplier interface {
	ApplyBlock(ctx context.Context, payload entity.WebhookPayload) (entity.ApplyResult, error)
}

type handler struct {
	dg            datagateway.StelaDataGateway
	verifier      *verifier.Verifier
	applier       EventApplier
	webhookSecret string
}

func New(dg datagateway.StelaDataGateway, v *verifier.Verifier, applier EventApplier, webhookSecret string) *handler {
	return &handler{
		dg:            dg,
		verifier:      v,
		applier:       applier,
		webhookSecret: webhookSecret,
	}
}
