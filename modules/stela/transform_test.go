package stela

import (
	"context"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	snutils "github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/modules/stela/calldata"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	getInscription      func(ctx context.Context, idLow, idHigh *felt.Felt) (*starknet.InscriptionView, error)
	getLocker           func(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error)
	contractNonce       func(ctx context.Context, address *felt.Felt) (*felt.Felt, error)
	isValidSignature    func(ctx context.Context, signer, messageHash *felt.Felt, signature []*felt.Felt) ([]*felt.Felt, error)
	blockNumber         func(ctx context.Context) (uint64, error)
	blockTimestamp      func(ctx context.Context, blockNumber uint64) (time.Time, error)
	events              func(ctx context.Context, params starknet.EventsParams) (*starknet.EventsPage, error)
	transactionCalldata func(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error)
	execute             func(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error)
	waitForReceipt      func(ctx context.Context, txHash *felt.Felt) error
}

func (s *stubClient) GetInscription(ctx context.Context, idLow, idHigh *felt.Felt) (*starknet.InscriptionView, error) {
	if s.getInscription == nil {
		return nil, errors.New("not implemented")
	}
	return s.getInscription(ctx, idLow, idHigh)
}

func (s *stubClient) GetLocker(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
	if s.getLocker == nil {
		return nil, errors.New("not implemented")
	}
	return s.getLocker(ctx, idLow, idHigh)
}

func (s *stubClient) ContractNonce(ctx context.Context, address *felt.Felt) (*felt.Felt, error) {
	if s.contractNonce == nil {
		return nil, errors.New("not implemented")
	}
	return s.contractNonce(ctx, address)
}

func (s *stubClient) IsValidSignature(ctx context.Context, signer, messageHash *felt.Felt, signature []*felt.Felt) ([]*felt.Felt, error) {
	if s.isValidSignature == nil {
		return nil, errors.New("not implemented")
	}
	return s.isValidSignature(ctx, signer, messageHash, signature)
}

func (s *stubClient) BlockNumber(ctx context.Context) (uint64, error) {
	if s.blockNumber == nil {
		return 0, errors.New("not implemented")
	}
	return s.blockNumber(ctx)
}

func (s *stubClient) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	if s.blockTimestamp == nil {
		return time.Time{}, errors.New("not implemented")
	}
	return s.blockTimestamp(ctx, blockNumber)
}

func (s *stubClient) Events(ctx context.Context, params starknet.EventsParams) (*starknet.EventsPage, error) {
	if s.events == nil {
		return nil, errors.New("not implemented")
	}
	return s.events(ctx, params)
}

func (s *stubClient) TransactionCalldata(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error) {
	if s.transactionCalldata == nil {
		return nil, errors.New("not implemented")
	}
	return s.transactionCalldata(ctx, txHash)
}

func (s *stubClient) Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error) {
	if s.execute == nil {
		return nil, errors.New("not implemented")
	}
	return s.execute(ctx, calls)
}

func (s *stubClient) WaitForReceipt(ctx context.Context, txHash *felt.Felt) error {
	if s.waitForReceipt == nil {
		return errors.New("not implemented")
	}
	return s.waitForReceipt(ctx, txHash)
}

var (
	testTimestamp = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	testTxHash    = snutils.GetSelectorFromNameFelt("some_tx")
)

func u64Felt(n uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(n)
}

func emitted(keys, data []*felt.Felt) rpc.EmittedEvent {
	return rpc.EmittedEvent{
		Event: rpc.Event{
			EventContent: rpc.EventContent{
				Keys: keys,
				Data: data,
			},
		},
		BlockNumber:     1234,
		TransactionHash: testTxHash,
	}
}

func TestTransformCreated(t *testing.T) {
	id := uint256.NewInt(7)
	idLow, idHigh := starkutils.U256ToFelts(id)
	creator := u64Felt(0xbeef)
	raw := emitted([]*felt.Felt{SelectorInscriptionCreated, idLow, idHigh, creator}, nil)

	assets := []entity.Asset{{
		Address: mustAddr(t, "0x123"),
		Type:    entity.AssetTypeERC20,
		Value:   uint256.NewInt(500),
		TokenId: uint256.NewInt(0),
	}}

	buildCalldata := func(t *testing.T) []*felt.Felt {
		args := []*felt.Felt{u64Felt(1)}
		encoded, err := calldata.EncodeAssets(assets)
		require.NoError(t, err)
		args = append(args, encoded...)
		empty, err := calldata.EncodeAssets(nil)
		require.NoError(t, err)
		args = append(args, empty...)
		args = append(args, empty...)
		args = append(args, u64Felt(3600), u64Felt(1_900_000_000), u64Felt(1))

		out := []*felt.Felt{u64Felt(1), u64Felt(0xdead), SelectorCreateInscription, u64Felt(uint64(len(args)))}
		return append(out, args...)
	}

	t.Run("enriched with calldata assets", func(t *testing.T) {
		client := &stubClient{
			getInscription: func(ctx context.Context, idLow, idHigh *felt.Felt) (*starknet.InscriptionView, error) {
				return &starknet.InscriptionView{
					MultiLender:     true,
					Duration:        3600,
					Deadline:        1_900_000_000,
					DebtCount:       1,
					InterestCount:   2,
					CollateralCount: 3,
				}, nil
			},
			transactionCalldata: func(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error) {
				return buildCalldata(t), nil
			},
		}

		event, err := NewTransformer(client).Transform(context.Background(), raw, testTimestamp)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, entity.EventKindCreated, event.Kind)
		assert.Equal(t, starkutils.U256ToHex(id), event.InscriptionId)
		assert.Equal(t, mustAddr(t, "0xbeef"), event.Creator)
		require.NotNil(t, event.MultiLender)
		assert.True(t, *event.MultiLender)
		require.NotNil(t, event.Duration)
		assert.Equal(t, uint64(3600), *event.Duration)
		require.NotNil(t, event.DebtAssetCount)
		assert.Equal(t, uint64(1), *event.DebtAssetCount)
		require.NotNil(t, event.InterestAssetCount)
		assert.Equal(t, uint64(2), *event.InterestAssetCount)
		require.NotNil(t, event.CollateralAssetCount)
		assert.Equal(t, uint64(3), *event.CollateralAssetCount)
		assert.Equal(t, assets, event.DebtAssets)
		assert.Empty(t, event.InterestAssets)
		assert.Empty(t, event.CollateralAssets)
	})

	t.Run("no transaction calldata degrades to empty asset lists", func(t *testing.T) {
		client := &stubClient{
			getInscription: func(ctx context.Context, idLow, idHigh *felt.Felt) (*starknet.InscriptionView, error) {
				return &starknet.InscriptionView{Duration: 3600}, nil
			},
			transactionCalldata: func(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error) {
				return nil, errors.New("tx not found")
			},
		}

		event, err := NewTransformer(client).Transform(context.Background(), raw, testTimestamp)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.NotNil(t, event.DebtAssets)
		assert.Empty(t, event.DebtAssets)
		assert.Empty(t, event.InterestAssets)
		assert.Empty(t, event.CollateralAssets)
	})

	t.Run("enrichment read failure keeps event", func(t *testing.T) {
		client := &stubClient{
			getInscription: func(ctx context.Context, idLow, idHigh *felt.Felt) (*starknet.InscriptionView, error) {
				return nil, errors.New("rpc down")
			},
			transactionCalldata: func(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error) {
				return nil, errors.New("rpc down")
			},
		}

		event, err := NewTransformer(client).Transform(context.Background(), raw, testTimestamp)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Nil(t, event.MultiLender)
		assert.Nil(t, event.Duration)
		assert.Nil(t, event.Deadline)
		assert.Nil(t, event.DebtAssetCount)
	})
}

func TestTransformSigned(t *testing.T) {
	id := uint256.NewInt(9)
	idLow, idHigh := starkutils.U256ToFelts(id)
	borrower := u64Felt(0xb0b)
	lender := u64Felt(0x1e4d)

	build := func(pct uint64) rpc.EmittedEvent {
		return emitted(
			[]*felt.Felt{SelectorInscriptionSigned, idLow, idHigh, borrower, lender},
			[]*felt.Felt{u64Felt(pct), u64Felt(0), u64Felt(42), u64Felt(0)},
		)
	}

	lockerAddr := u64Felt(0x10c)

	t.Run("full fill", func(t *testing.T) {
		client := &stubClient{
			getLocker: func(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
				return lockerAddr, nil
			},
		}
		event, err := NewTransformer(client).Transform(context.Background(), build(10000), testTimestamp)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, entity.InscriptionStatusFilled, event.Status)
		assert.Equal(t, mustAddr(t, "0xb0b"), event.Borrower)
		assert.Equal(t, mustAddr(t, "0x1e4d"), event.Lender)
		require.NotNil(t, event.Locker)
		assert.Equal(t, mustAddr(t, "0x10c"), *event.Locker)
		assert.Equal(t, uint256.NewInt(42), event.Shares)
	})

	t.Run("partial fill", func(t *testing.T) {
		client := &stubClient{
			getLocker: func(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
				return lockerAddr, nil
			},
		}
		event, err := NewTransformer(client).Transform(context.Background(), build(9999), testTimestamp)
		require.NoError(t, err)
		assert.Equal(t, entity.InscriptionStatusPartial, event.Status)
	})

	t.Run("above full fill is still filled", func(t *testing.T) {
		client := &stubClient{
			getLocker: func(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
				return lockerAddr, nil
			},
		}
		event, err := NewTransformer(client).Transform(context.Background(), build(10001), testTimestamp)
		require.NoError(t, err)
		assert.Equal(t, entity.InscriptionStatusFilled, event.Status)
	})

	t.Run("zero locker stays nil", func(t *testing.T) {
		client := &stubClient{
			getLocker: func(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
				return new(felt.Felt), nil
			},
		}
		event, err := NewTransformer(client).Transform(context.Background(), build(10000), testTimestamp)
		require.NoError(t, err)
		assert.Nil(t, event.Locker)
	})

	t.Run("locker read failure stays nil", func(t *testing.T) {
		client := &stubClient{
			getLocker: func(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
				return nil, errors.New("rpc down")
			},
		}
		event, err := NewTransformer(client).Transform(context.Background(), build(10000), testTimestamp)
		require.NoError(t, err)
		assert.Nil(t, event.Locker)
	})
}

func TestTransformActorEvents(t *testing.T) {
	id := uint256.NewInt(3)
	idLow, idHigh := starkutils.U256ToFelts(id)
	actor := u64Felt(0xac0)

	test := func(selector *felt.Felt, kind entity.EventKind) {
		t.Run(string(kind), func(t *testing.T) {
			raw := emitted([]*felt.Felt{selector, idLow, idHigh}, []*felt.Felt{actor})
			event, err := NewTransformer(&stubClient{}).Transform(context.Background(), raw, testTimestamp)
			require.NoError(t, err)
			require.NotNil(t, event)
			assert.Equal(t, kind, event.Kind)
			assert.Equal(t, mustAddr(t, "0xac0"), event.Actor)
		})
	}

	test(SelectorInscriptionCancelled, entity.EventKindCancelled)
	test(SelectorInscriptionRepaid, entity.EventKindRepaid)
	test(SelectorInscriptionLiquidated, entity.EventKindLiquidated)
}

func TestTransformRedeemed(t *testing.T) {
	id := uint256.NewInt(5)
	idLow, idHigh := starkutils.U256ToFelts(id)
	raw := emitted(
		[]*felt.Felt{SelectorSharesRedeemed, idLow, idHigh, u64Felt(0xedd)},
		[]*felt.Felt{u64Felt(77), u64Felt(0)},
	)

	event, err := NewTransformer(&stubClient{}).Transform(context.Background(), raw, testTimestamp)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, entity.EventKindRedeemed, event.Kind)
	assert.Equal(t, mustAddr(t, "0xedd"), event.Redeemer)
	assert.Equal(t, uint256.NewInt(77), event.Shares)
}

func TestTransformTransferSingle(t *testing.T) {
	id := uint256.NewInt(11)
	idLow, idHigh := starkutils.U256ToFelts(id)
	raw := emitted(
		[]*felt.Felt{SelectorTransferSingle, u64Felt(0x0b), u64Felt(0xf0), u64Felt(0x70)},
		[]*felt.Felt{idLow, idHigh, u64Felt(25), u64Felt(0)},
	)

	event, err := NewTransformer(&stubClient{}).Transform(context.Background(), raw, testTimestamp)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, entity.EventKindTransferSingle, event.Kind)
	assert.Equal(t, starkutils.U256ToHex(id), event.InscriptionId)
	assert.Equal(t, mustAddr(t, "0xf0"), event.From)
	assert.Equal(t, mustAddr(t, "0x70"), event.To)
	assert.Equal(t, uint256.NewInt(25), event.Value)
}

func TestTransformUnknownSelector(t *testing.T) {
	raw := emitted([]*felt.Felt{snutils.GetSelectorFromNameFelt("SomethingElse"), u64Felt(1), u64Felt(0)}, nil)
	event, err := NewTransformer(&stubClient{}).Transform(context.Background(), raw, testTimestamp)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestTransformMalformed(t *testing.T) {
	t.Run("no keys", func(t *testing.T) {
		_, err := NewTransformer(&stubClient{}).Transform(context.Background(), emitted(nil, nil), testTimestamp)
		assert.Error(t, err)
	})

	t.Run("missing id keys", func(t *testing.T) {
		raw := emitted([]*felt.Felt{SelectorInscriptionCancelled, u64Felt(1)}, []*felt.Felt{u64Felt(2)})
		_, err := NewTransformer(&stubClient{}).Transform(context.Background(), raw, testTimestamp)
		assert.Error(t, err)
	})

	t.Run("signed missing data", func(t *testing.T) {
		raw := emitted([]*felt.Felt{SelectorInscriptionSigned, u64Felt(1), u64Felt(0), u64Felt(2), u64Felt(3)}, nil)
		_, err := NewTransformer(&stubClient{}).Transform(context.Background(), raw, testTimestamp)
		assert.Error(t, err)
	})
}

func mustAddr(t *testing.T, hex string) string {
	t.Helper()
	addr, err := starkutils.NormalizeAddressHex(hex)
	require.NoError(t, err)
	return addr
}
