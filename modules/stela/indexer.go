package stela

import (
	"context"
	"sort"
	"time"

	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
)

const (
	eventsChunkSize = 1000

	// Delivery retries never give up: dropping a block would leave a
	// permanent hole in downstream state. The backoff just stops a dead
	// receiver from being hammered.
	retryBackoffBase = 5 * time.Second
	retryBackoffMax  = 5 * time.Minute
)

// EventSender delivers one block's worth of normalized events.
type EventSender interface {
	Send(ctx context.Context, payload entity.WebhookPayload) error
}

// Indexer polls the chain for Stela contract events, normalizes them
// and delivers them block by block through the sender. Progress is the
// receiver's cursor: a block only counts as done once the receiver has
// applied it and advanced the cursor.
type Indexer struct {
	client      starknet.Client
	dg          datagateway.StelaDataGateway
	transformer *Transformer
	sender      EventSender

	// retryBase is the first delivery retry delay; each retry doubles
	// it up to retryBackoffMax.
	retryBase time.Duration
}

func NewIndexer(client starknet.Client, dg datagateway.StelaDataGateway, sender EventSender) *Indexer {
	return &Indexer{
		client:      client,
		dg:          dg,
		transformer: NewTransformer(client),
		sender:      sender,
		retryBase:   retryBackoffBase,
	}
}

// Run polls until the context is cancelled. Rounds that fail or reach
// the chain head wait one polling interval before the next attempt.
func (ix *Indexer) Run(ctx context.Context) error {
	logger.InfoContext(ctx, "starting indexer",
		slogx.String("event", "indexer_start"),
	)
	for {
		caughtUp, err := ix.runRound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.InfoContext(ctx, "stopping indexer")
				return nil
			}
			logger.ErrorContext(ctx, "ingestion round failed", slogx.Error(err))
		}
		if err != nil || caughtUp {
			select {
			case <-ctx.Done():
				logger.InfoContext(ctx, "stopping indexer")
				return nil
			case <-time.After(pollingInterval):
			}
		}
	}
}

// runRound ingests at most maxBlockRange blocks past the cursor and
// reports whether the chain head was reached.
func (ix *Indexer) runRound(ctx context.Context) (bool, error) {
	cursor, err := ix.dg.GetCursor(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to read cursor")
	}
	head, err := ix.client.BlockNumber(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to read chain head")
	}
	if head <= cursor {
		return true, nil
	}

	from := cursor + 1
	to := min(head, cursor+maxBlockRange)

	raw, err := ix.fetchEvents(ctx, from, to)
	if err != nil {
		return false, errors.Wrapf(err, "failed to fetch events in range %d-%d", from, to)
	}

	byBlock := lo.GroupBy(raw, func(event rpc.EmittedEvent) uint64 { return event.BlockNumber })
	blockNumbers := lo.Keys(byBlock)
	sort.Slice(blockNumbers, func(i, j int) bool { return blockNumbers[i] < blockNumbers[j] })

	timestamps := make(map[uint64]time.Time)
	var lastDelivered uint64
	for _, blockNumber := range blockNumbers {
		timestamp, err := ix.blockTimestamp(ctx, timestamps, blockNumber)
		if err != nil {
			return false, errors.Wrapf(err, "failed to read timestamp of block %d", blockNumber)
		}

		events := make([]entity.InscriptionEvent, 0, len(byBlock[blockNumber]))
		for _, rawEvent := range byBlock[blockNumber] {
			event, err := ix.transformer.Transform(ctx, rawEvent, timestamp)
			if err != nil {
				logger.ErrorContext(ctx, "failed to transform event, skipping",
					slogx.Error(err),
					slogx.Uint64("block_number", blockNumber),
					slogx.String("tx_hash", rawEvent.TransactionHash.String()),
				)
				continue
			}
			if event == nil {
				continue
			}
			events = append(events, *event)
		}

		if err := ix.deliver(ctx, entity.WebhookPayload{
			BlockNumber: blockNumber,
			Events:      events,
			Cursor:      cursor,
		}); err != nil {
			return false, errors.WithStack(err)
		}
		lastDelivered = blockNumber
	}

	// An empty tail payload moves the cursor to the end of the scanned
	// range, otherwise event-free blocks would be rescanned forever.
	if lastDelivered < to {
		if err := ix.deliver(ctx, entity.WebhookPayload{BlockNumber: to, Cursor: cursor}); err != nil {
			return false, errors.WithStack(err)
		}
	}

	logger.DebugContext(ctx, "ingestion round complete",
		slogx.Uint64("from_block", from),
		slogx.Uint64("to_block", to),
		slogx.Int("events", len(raw)),
	)
	return to >= head, nil
}

func (ix *Indexer) fetchEvents(ctx context.Context, from, to uint64) ([]rpc.EmittedEvent, error) {
	var out []rpc.EmittedEvent
	token := ""
	for {
		page, err := ix.client.Events(ctx, starknet.EventsParams{
			FromBlock:         from,
			ToBlock:           to,
			Keys:              AllEventSelectors(),
			ContinuationToken: token,
			ChunkSize:         eventsChunkSize,
		})
		if err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, page.Events...)
		if page.ContinuationToken == "" {
			return out, nil
		}
		token = page.ContinuationToken
	}
}

func (ix *Indexer) blockTimestamp(ctx context.Context, cache map[uint64]time.Time, blockNumber uint64) (time.Time, error) {
	if timestamp, ok := cache[blockNumber]; ok {
		return timestamp, nil
	}
	timestamp, err := ix.client.BlockTimestamp(ctx, blockNumber)
	if err != nil {
		return time.Time{}, errors.WithStack(err)
	}
	cache[blockNumber] = timestamp
	return timestamp, nil
}

// deliver retries until the receiver accepts the payload or the context
// is cancelled.
func (ix *Indexer) deliver(ctx context.Context, payload entity.WebhookPayload) error {
	backoff := ix.retryBase
	for {
		err := ix.sender.Send(ctx, payload)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}
		logger.ErrorContext(ctx, "webhook delivery failed, retrying",
			slogx.Error(err),
			slogx.Uint64("block_number", payload.BlockNumber),
		)
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, retryBackoffMax)
	}
}
