package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway overrides only the methods the bot touches; anything else
// panics through the embedded nil interface.
type fakeGateway struct {
	datagateway.StelaDataGateway

	mu            sync.Mutex
	lock          *time.Time
	lockCleared   bool
	beforeAcquire func()
	expiredOrders int64

	matchedOrders []entity.Order
	pendingOffers map[int64]*entity.OrderOffer
	liquidatable  []entity.Inscription

	orderTransitions []string
	offerTransitions []string
}

func (f *fakeGateway) TryAcquireBotLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	if f.beforeAcquire != nil {
		f.beforeAcquire()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock != nil && now.Sub(*f.lock) < ttl {
		return false, nil
	}
	f.lock = &now
	return true, nil
}

func (f *fakeGateway) ClearBotLock(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockCleared = true
	f.lock = nil
	return nil
}

func (f *fakeGateway) ExpirePendingOrders(ctx context.Context, now time.Time) (int64, error) {
	return f.expiredOrders, nil
}

func (f *fakeGateway) ExpireOpenInscriptions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeGateway) ListMatchedOrders(ctx context.Context, limit int32) ([]entity.Order, error) {
	return f.matchedOrders, nil
}

func (f *fakeGateway) GetPendingOfferByOrder(ctx context.Context, orderId int64) (*entity.OrderOffer, error) {
	offer, ok := f.pendingOffers[orderId]
	if !ok {
		return nil, errors.New("no pending offer")
	}
	return offer, nil
}

func (f *fakeGateway) UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (bool, error) {
	f.orderTransitions = append(f.orderTransitions, string(from)+"->"+string(to))
	return true, nil
}

func (f *fakeGateway) UpdateOfferStatus(ctx context.Context, id int64, to entity.OfferStatus) error {
	f.offerTransitions = append(f.offerTransitions, string(to))
	return nil
}

func (f *fakeGateway) GetLiquidatableInscriptions(ctx context.Context, now time.Time, limit int32) ([]entity.Inscription, error) {
	return f.liquidatable, nil
}

type fakeClient struct {
	starknet.Client

	mu        sync.Mutex
	nonces    map[string]uint64
	nonceErr  error
	executed  []rpc.InvokeFunctionCall
	execErr   error
	waitErr   error
	nextTxSeq uint64
}

func (f *fakeClient) ContractNonce(ctx context.Context, address *felt.Felt) (*felt.Felt, error) {
	if f.nonceErr != nil {
		return nil, f.nonceErr
	}
	nonce := f.nonces[starkutils.NormalizeAddress(address)]
	return new(felt.Felt).SetUint64(nonce), nil
}

func (f *fakeClient) Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, calls...)
	f.nextTxSeq++
	return new(felt.Felt).SetUint64(f.nextTxSeq), nil
}

func (f *fakeClient) WaitForReceipt(ctx context.Context, txHash *felt.Felt) error {
	return f.waitErr
}

const testContract = "0xc0ffee"

func addr(t *testing.T, hex string) string {
	t.Helper()
	out, err := starkutils.NormalizeAddressHex(hex)
	require.NoError(t, err)
	return out
}

func matchedPair(t *testing.T) (entity.Order, *entity.OrderOffer) {
	order := entity.Order{
		Id:        1,
		OrderHash: "0xaaaa",
		Creator:   addr(t, "0xb0b"),
		IsBorrow:  true,
		DebtAssets: []entity.Asset{{
			Address: addr(t, "0x5"),
			Type:    entity.AssetTypeERC20,
			Value:   uint256.NewInt(1000),
			TokenId: uint256.NewInt(0),
		}},
		Duration:  3600,
		Deadline:  time.Now().Add(time.Hour),
		Nonce:     uint256.NewInt(4),
		Signature: entity.Signature{"0x1", "0x2"},
		Status:    entity.OrderStatusMatched,
	}
	offer := &entity.OrderOffer{
		Id:        10,
		OrderId:   1,
		OrderHash: "0xaaaa",
		Lender:    addr(t, "0x1e4d"),
		FillBps:   10000,
		Nonce:     uint256.NewInt(9),
		Signature: entity.Signature{"0x3", "0x4"},
		Status:    entity.OfferStatusPending,
	}
	return order, offer
}

func newTestBot(t *testing.T, dg datagateway.StelaDataGateway, client starknet.Client) *Bot {
	t.Helper()
	b, err := New(dg, client, testContract, Config{
		Interval: time.Minute,
		LockTTL:  5 * time.Minute,
	})
	require.NoError(t, err)
	return b
}

func TestRunOnceLock(t *testing.T) {
	t.Run("fresh lock skips run", func(t *testing.T) {
		held := time.Now().UTC().Add(-time.Minute)
		dg := &fakeGateway{lock: &held}
		client := &fakeClient{}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		assert.False(t, dg.lockCleared, "skipped run must not release the other holder's lock")
		assert.Empty(t, client.executed)
	})

	t.Run("stale lock is reclaimed", func(t *testing.T) {
		held := time.Now().UTC().Add(-10 * time.Minute)
		dg := &fakeGateway{lock: &held}
		client := &fakeClient{}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		assert.True(t, dg.lockCleared, "run past a stale lock must release it at the end")
	})

	t.Run("no lock proceeds and releases", func(t *testing.T) {
		dg := &fakeGateway{}
		client := &fakeClient{}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		assert.True(t, dg.lockCleared)
	})
}

func TestRunOnceConcurrentInvocations(t *testing.T) {
	order, offer := matchedPair(t)
	dg := &fakeGateway{
		matchedOrders: []entity.Order{order},
		pendingOffers: map[int64]*entity.OrderOffer{1: offer},
	}
	client := &fakeClient{nonces: map[string]uint64{
		order.Creator: 4,
		offer.Lender:  9,
	}}

	// Both invocations reach lock acquisition before either proceeds,
	// so they genuinely contend for the same free lock.
	var gate sync.WaitGroup
	gate.Add(2)
	dg.beforeAcquire = func() {
		gate.Done()
		gate.Wait()
	}

	bot := newTestBot(t, dg, client)
	var runs sync.WaitGroup
	runs.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer runs.Done()
			assert.NoError(t, bot.RunOnce(context.Background()))
		}()
	}
	runs.Wait()

	assert.Len(t, client.executed, 1, "exactly one invocation may settle")
	assert.Len(t, dg.orderTransitions, 1)
}

func TestSettleMatched(t *testing.T) {
	t.Run("both nonces valid settles the pair", func(t *testing.T) {
		order, offer := matchedPair(t)
		dg := &fakeGateway{
			matchedOrders: []entity.Order{order},
			pendingOffers: map[int64]*entity.OrderOffer{1: offer},
		}
		client := &fakeClient{nonces: map[string]uint64{
			order.Creator: 4,
			offer.Lender:  9,
		}}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		require.Len(t, client.executed, 1)
		assert.Equal(t, "settle", client.executed[0].FunctionName)
		assert.Contains(t, dg.orderTransitions, "matched->settled")
		assert.Contains(t, dg.offerTransitions, "settled")
	})

	t.Run("borrower nonce mismatch expires order only", func(t *testing.T) {
		order, offer := matchedPair(t)
		dg := &fakeGateway{
			matchedOrders: []entity.Order{order},
			pendingOffers: map[int64]*entity.OrderOffer{1: offer},
		}
		client := &fakeClient{nonces: map[string]uint64{
			order.Creator: 5, // consumed
			offer.Lender:  9,
		}}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		assert.Empty(t, client.executed, "no settlement transaction may be sent")
		assert.Contains(t, dg.orderTransitions, "matched->expired")
		assert.Empty(t, dg.offerTransitions, "offer must stay untouched")
	})

	t.Run("lender nonce mismatch expires offer only", func(t *testing.T) {
		order, offer := matchedPair(t)
		dg := &fakeGateway{
			matchedOrders: []entity.Order{order},
			pendingOffers: map[int64]*entity.OrderOffer{1: offer},
		}
		client := &fakeClient{nonces: map[string]uint64{
			order.Creator: 4,
			offer.Lender:  10, // consumed
		}}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		assert.Empty(t, client.executed)
		assert.Empty(t, dg.orderTransitions, "order must stay matched")
		assert.Contains(t, dg.offerTransitions, "expired")
	})

	t.Run("nonce read failure leaves pair matched", func(t *testing.T) {
		order, offer := matchedPair(t)
		dg := &fakeGateway{
			matchedOrders: []entity.Order{order},
			pendingOffers: map[int64]*entity.OrderOffer{1: offer},
		}
		client := &fakeClient{nonceErr: errors.New("rpc down")}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		assert.Empty(t, client.executed)
		assert.Empty(t, dg.orderTransitions)
		assert.Empty(t, dg.offerTransitions)
	})

	t.Run("submission failure leaves pair matched", func(t *testing.T) {
		order, offer := matchedPair(t)
		dg := &fakeGateway{
			matchedOrders: []entity.Order{order},
			pendingOffers: map[int64]*entity.OrderOffer{1: offer},
		}
		client := &fakeClient{
			nonces: map[string]uint64{
				order.Creator: 4,
				offer.Lender:  9,
			},
			execErr: errors.New("sequencer unavailable"),
		}

		require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
		assert.Empty(t, dg.orderTransitions)
		assert.Empty(t, dg.offerTransitions)
	})
}

func TestLiquidate(t *testing.T) {
	signedAt := time.Now().UTC().Add(-48 * time.Hour)
	liquidatable := func(id uint64) entity.Inscription {
		return entity.Inscription{
			Id:       uint256.NewInt(id),
			Status:   entity.InscriptionStatusFilled,
			Duration: 3600,
			SignedAt: &signedAt,
		}
	}

	dg := &fakeGateway{
		liquidatable: []entity.Inscription{liquidatable(1), liquidatable(2)},
	}
	client := &fakeClient{}

	require.NoError(t, newTestBot(t, dg, client).RunOnce(context.Background()))
	require.Len(t, client.executed, 2)
	for _, call := range client.executed {
		assert.Equal(t, "liquidate", call.FunctionName)
		assert.Len(t, call.CallData, 2)
	}
}

func TestBuildSettleCall(t *testing.T) {
	order, offer := matchedPair(t)
	contract, err := starkutils.NormalizeAddressHex(testContract)
	require.NoError(t, err)
	contractFelt := new(felt.Felt)
	_, err = contractFelt.SetString(contract)
	require.NoError(t, err)

	call, err := buildSettleCall(contractFelt, order, *offer)
	require.NoError(t, err)
	assert.Equal(t, "settle", call.FunctionName)

	// order head (7) + debt array (1+6) + two empty arrays (1+1)
	// + order sig (1+2) + offer head (4) + offer sig (1+2)
	assert.Len(t, call.CallData, 7+7+2+3+4+3)

	t.Run("bad signature element", func(t *testing.T) {
		broken := order
		broken.Signature = entity.Signature{"not a felt"}
		_, err := buildSettleCall(contractFelt, broken, *offer)
		assert.Error(t, err)
	})
}
