// Package bot runs the settlement worker: it expires stale orders,
// settles matched order/offer pairs on-chain and liquidates overdue
// inscriptions. A single instance at a time proceeds past the database
// lock; others skip their run.
package bot

import (
	"context"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

const (
	defaultInterval = 2 * time.Minute
	defaultLockTTL  = 5 * time.Minute

	// confirmationTimeout bounds each wait for a settlement or
	// liquidation receipt.
	confirmationTimeout = 120 * time.Second

	matchedOrdersBatch = 20
	liquidationBatch   = 50
)

type Bot struct {
	dg       datagateway.StelaDataGateway
	client   starknet.Client
	contract *felt.Felt
	config   Config
}

func New(dg datagateway.StelaDataGateway, client starknet.Client, contractAddress string, config Config) (*Bot, error) {
	contract, err := utils.HexToFelt(contractAddress)
	if err != nil {
		return nil, errors.Wrap(err, "invalid contract address")
	}
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaultLockTTL
	}
	return &Bot{dg: dg, client: client, contract: contract, config: config}, nil
}

// Run executes settlement runs on a fixed ticker until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	logger.InfoContext(ctx, "starting settlement bot",
		slogx.Duration("interval", b.config.Interval),
		slogx.Duration("lock_ttl", b.config.LockTTL),
	)
	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		if err := b.RunOnce(ctx); err != nil {
			logger.ErrorContext(ctx, "settlement run failed", slogx.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "stopping settlement bot")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs one full settlement run. Every step past the lock is
// best-effort: a failure in one step still lets the later steps run.
func (b *Bot) RunOnce(ctx context.Context) error {
	acquired, err := b.acquireLock(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to acquire bot lock")
	}
	if !acquired {
		logger.InfoContext(ctx, "bot lock held by another instance, skipping run")
		return nil
	}
	defer func() {
		// Best effort. A leaked lock is reclaimed after the TTL.
		if err := b.dg.ClearBotLock(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "failed to release bot lock", slogx.Error(err))
		}
	}()

	if err := b.expire(ctx); err != nil {
		logger.ErrorContext(ctx, "expiry step failed", slogx.Error(err))
	}
	if err := b.settleMatched(ctx); err != nil {
		logger.ErrorContext(ctx, "settlement step failed", slogx.Error(err))
	}
	if err := b.liquidate(ctx); err != nil {
		logger.ErrorContext(ctx, "liquidation step failed", slogx.Error(err))
	}
	return nil
}

// acquireLock claims the single-row bot lock. A lock younger than the
// TTL belongs to a live run elsewhere; an older one is stale and gets
// overwritten. The claim is a single compare-and-swap in the store, so
// concurrent invocations inside the TTL window cannot both win.
func (b *Bot) acquireLock(ctx context.Context) (bool, error) {
	acquired, err := b.dg.TryAcquireBotLock(ctx, time.Now().UTC(), b.config.LockTTL)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return acquired, nil
}

func (b *Bot) expire(ctx context.Context) error {
	now := time.Now().UTC()
	expiredOrders, err := b.dg.ExpirePendingOrders(ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to expire pending orders")
	}
	expiredInscriptions, err := b.dg.ExpireOpenInscriptions(ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to expire open inscriptions")
	}
	if expiredOrders > 0 || expiredInscriptions > 0 {
		logger.InfoContext(ctx, "expired stale entries",
			slogx.Int64("orders", expiredOrders),
			slogx.Int64("inscriptions", expiredInscriptions),
		)
	}
	return nil
}

func (b *Bot) settleMatched(ctx context.Context) error {
	orders, err := b.dg.ListMatchedOrders(ctx, matchedOrdersBatch)
	if err != nil {
		return errors.Wrap(err, "failed to list matched orders")
	}

	for _, order := range orders {
		if err := b.settleOne(ctx, order); err != nil {
			// The pair stays matched and is retried next run.
			logger.ErrorContext(ctx, "failed to settle order",
				slogx.Error(err),
				slogx.Int64("order_id", order.Id),
				slogx.String("order_hash", order.OrderHash),
			)
		}
	}
	return nil
}

func (b *Bot) settleOne(ctx context.Context, order entity.Order) error {
	offer, err := b.dg.GetPendingOfferByOrder(ctx, order.Id)
	if err != nil {
		return errors.Wrap(err, "failed to load pending offer")
	}

	// Both nonces are re-read right before settling; the API-time check
	// was only advisory. A read failure here skips the pair.
	borrowerOk, err := b.nonceStillValid(ctx, order.Creator, order.Nonce)
	if err != nil {
		return errors.Wrap(err, "failed to re-check borrower nonce")
	}
	if !borrowerOk {
		logger.InfoContext(ctx, "borrower nonce consumed, expiring order",
			slogx.Int64("order_id", order.Id),
		)
		if _, err := b.dg.UpdateOrderStatus(ctx, order.Id, entity.OrderStatusMatched, entity.OrderStatusExpired); err != nil {
			return errors.Wrap(err, "failed to expire order")
		}
		return nil
	}

	lenderOk, err := b.nonceStillValid(ctx, offer.Lender, offer.Nonce)
	if err != nil {
		return errors.Wrap(err, "failed to re-check lender nonce")
	}
	if !lenderOk {
		logger.InfoContext(ctx, "lender nonce consumed, expiring offer",
			slogx.Int64("order_id", order.Id),
			slogx.Int64("offer_id", offer.Id),
		)
		if err := b.dg.UpdateOfferStatus(ctx, offer.Id, entity.OfferStatusExpired); err != nil {
			return errors.Wrap(err, "failed to expire offer")
		}
		return nil
	}

	call, err := buildSettleCall(b.contract, order, *offer)
	if err != nil {
		return errors.Wrap(err, "failed to build settle call")
	}
	txHash, err := b.client.Execute(ctx, []rpc.InvokeFunctionCall{call})
	if err != nil {
		return errors.Wrap(err, "failed to submit settle transaction")
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmationTimeout)
	defer cancel()
	if err := b.client.WaitForReceipt(waitCtx, txHash); err != nil {
		return errors.Wrapf(err, "settle transaction %s not confirmed", txHash.String())
	}

	if _, err := b.dg.UpdateOrderStatus(ctx, order.Id, entity.OrderStatusMatched, entity.OrderStatusSettled); err != nil {
		return errors.Wrap(err, "failed to mark order settled")
	}
	if err := b.dg.UpdateOfferStatus(ctx, offer.Id, entity.OfferStatusSettled); err != nil {
		return errors.Wrap(err, "failed to mark offer settled")
	}
	logger.InfoContext(ctx, "settled order",
		slogx.Int64("order_id", order.Id),
		slogx.Int64("offer_id", offer.Id),
		slogx.String("tx_hash", txHash.String()),
	)
	return nil
}

func (b *Bot) nonceStillValid(ctx context.Context, address string, submitted *uint256.Int) (bool, error) {
	addr, err := utils.HexToFelt(address)
	if err != nil {
		return false, errors.Wrap(err, "invalid address")
	}
	onChain, err := b.client.ContractNonce(ctx, addr)
	if err != nil {
		return false, errors.Wrap(err, "nonce read failed")
	}
	low, high := starkutils.U256ToFelts(submitted)
	if !high.IsZero() {
		return false, nil
	}
	return onChain.Equal(low), nil
}

func (b *Bot) liquidate(ctx context.Context) error {
	candidates, err := b.dg.GetLiquidatableInscriptions(ctx, time.Now().UTC(), liquidationBatch)
	if err != nil {
		return errors.Wrap(err, "failed to list liquidatable inscriptions")
	}

	for _, inscription := range candidates {
		if err := b.liquidateOne(ctx, inscription); err != nil {
			logger.ErrorContext(ctx, "failed to liquidate inscription",
				slogx.Error(err),
				slogx.String("inscription_id", starkutils.U256ToHex(inscription.Id)),
			)
		}
	}
	return nil
}

func (b *Bot) liquidateOne(ctx context.Context, inscription entity.Inscription) error {
	idLow, idHigh := starkutils.U256ToFelts(inscription.Id)
	txHash, err := b.client.Execute(ctx, []rpc.InvokeFunctionCall{{
		ContractAddress: b.contract,
		FunctionName:    "liquidate",
		CallData:        []*felt.Felt{idLow, idHigh},
	}})
	if err != nil {
		return errors.Wrap(err, "failed to submit liquidate transaction")
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmationTimeout)
	defer cancel()
	if err := b.client.WaitForReceipt(waitCtx, txHash); err != nil {
		return errors.Wrapf(err, "liquidate transaction %s not confirmed", txHash.String())
	}
	logger.InfoContext(ctx, "liquidated inscription",
		slogx.String("inscription_id", starkutils.U256ToHex(inscription.Id)),
		slogx.String("tx_hash", txHash.String()),
	)
	return nil
}
