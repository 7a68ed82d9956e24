package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	contractNonce    func(ctx context.Context, address *felt.Felt) (*felt.Felt, error)
	isValidSignature func(ctx context.Context, signer, messageHash *felt.Felt, signature []*felt.Felt) ([]*felt.Felt, error)
}

func (s *stubClient) GetInscription(ctx context.Context, idLow, idHigh *felt.Felt) (*starknet.InscriptionView, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) GetLocker(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) ContractNonce(ctx context.Context, address *felt.Felt) (*felt.Felt, error) {
	return s.contractNonce(ctx, address)
}

func (s *stubClient) IsValidSignature(ctx context.Context, signer, messageHash *felt.Felt, signature []*felt.Felt) ([]*felt.Felt, error) {
	return s.isValidSignature(ctx, signer, messageHash, signature)
}

func (s *stubClient) BlockNumber(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubClient) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	return time.Time{}, errors.New("not implemented")
}

func (s *stubClient) Events(ctx context.Context, params starknet.EventsParams) (*starknet.EventsPage, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) TransactionCalldata(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) WaitForReceipt(ctx context.Context, txHash *felt.Felt) error {
	return errors.New("not implemented")
}

func testOrder() entity.Order {
	return entity.Order{
		OrderHash: "0x1",
		Creator:   "0x01a3",
		IsBorrow:  true,
		DebtAssets: []entity.Asset{{
			Address: "0x5",
			Type:    entity.AssetTypeERC20,
			Value:   uint256.NewInt(1000),
			TokenId: uint256.NewInt(0),
		}},
		Duration:    86400,
		Deadline:    time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Nonce:       uint256.NewInt(4),
		MultiLender: false,
	}
}

func TestOrderHash(t *testing.T) {
	order := testOrder()

	first, err := OrderHash("SN_SEPOLIA", order)
	require.NoError(t, err)
	second, err := OrderHash("SN_SEPOLIA", order)
	require.NoError(t, err)
	assert.True(t, first.Equal(second), "hash must be deterministic")

	t.Run("nonce changes hash", func(t *testing.T) {
		changed := order
		changed.Nonce = uint256.NewInt(5)
		other, err := OrderHash("SN_SEPOLIA", changed)
		require.NoError(t, err)
		assert.False(t, first.Equal(other))
	})

	t.Run("asset list changes hash", func(t *testing.T) {
		changed := order
		changed.DebtAssets = []entity.Asset{{
			Address: "0x5",
			Type:    entity.AssetTypeERC20,
			Value:   uint256.NewInt(1001),
			TokenId: uint256.NewInt(0),
		}}
		other, err := OrderHash("SN_SEPOLIA", changed)
		require.NoError(t, err)
		assert.False(t, first.Equal(other))
	})

	t.Run("chain id changes hash", func(t *testing.T) {
		other, err := OrderHash("SN_MAIN", order)
		require.NoError(t, err)
		assert.False(t, first.Equal(other))
	})

	t.Run("invalid creator", func(t *testing.T) {
		changed := order
		changed.Creator = "not hex"
		_, err := OrderHash("SN_SEPOLIA", changed)
		assert.Error(t, err)
	})
}

func TestOfferHash(t *testing.T) {
	orderHash, err := OrderHash("SN_SEPOLIA", testOrder())
	require.NoError(t, err)

	offer := entity.OrderOffer{
		Lender:  "0x77",
		FillBps: 10000,
		Nonce:   uint256.NewInt(1),
	}

	first, err := OfferHash("SN_SEPOLIA", orderHash, offer)
	require.NoError(t, err)
	second, err := OfferHash("SN_SEPOLIA", orderHash, offer)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.False(t, first.Equal(orderHash))

	changed := offer
	changed.FillBps = 5000
	other, err := OfferHash("SN_SEPOLIA", orderHash, changed)
	require.NoError(t, err)
	assert.False(t, first.Equal(other))
}

func TestVerifySignature(t *testing.T) {
	signer := new(felt.Felt).SetUint64(0xacc)
	hash := new(felt.Felt).SetUint64(0x123)
	signature := []*felt.Felt{new(felt.Felt).SetUint64(1), new(felt.Felt).SetUint64(2)}

	test := func(name string, result []*felt.Felt, err error, expected bool) {
		t.Run(name, func(t *testing.T) {
			v := New(&stubClient{
				isValidSignature: func(ctx context.Context, signer, messageHash *felt.Felt, sig []*felt.Felt) ([]*felt.Felt, error) {
					return result, err
				},
			}, "SN_SEPOLIA")
			assert.Equal(t, expected, v.VerifySignature(context.Background(), signer, hash, signature))
		})
	}

	test("VALID magic", []*felt.Felt{validMagic}, nil, true)
	test("legacy one", []*felt.Felt{new(felt.Felt).SetUint64(1)}, nil, true)
	test("other value", []*felt.Felt{new(felt.Felt).SetUint64(0)}, nil, false)
	test("empty result", nil, nil, false)
	test("rpc error fails closed", nil, errors.New("rpc down"), false)
}

func TestVerifyNonce(t *testing.T) {
	address := new(felt.Felt).SetUint64(0xacc)
	submitted := new(felt.Felt).SetUint64(7)

	t.Run("matching nonce", func(t *testing.T) {
		v := New(&stubClient{
			contractNonce: func(ctx context.Context, address *felt.Felt) (*felt.Felt, error) {
				return new(felt.Felt).SetUint64(7), nil
			},
		}, "SN_SEPOLIA")
		check := v.VerifyNonce(context.Background(), address, submitted)
		assert.True(t, check.Valid)
		require.NotNil(t, check.OnChain)
		assert.True(t, check.OnChain.Equal(submitted))
	})

	t.Run("stale nonce", func(t *testing.T) {
		v := New(&stubClient{
			contractNonce: func(ctx context.Context, address *felt.Felt) (*felt.Felt, error) {
				return new(felt.Felt).SetUint64(8), nil
			},
		}, "SN_SEPOLIA")
		check := v.VerifyNonce(context.Background(), address, submitted)
		assert.False(t, check.Valid)
	})

	t.Run("rpc error fails open", func(t *testing.T) {
		v := New(&stubClient{
			contractNonce: func(ctx context.Context, address *felt.Felt) (*felt.Felt, error) {
				return nil, errors.New("rpc down")
			},
		}, "SN_SEPOLIA")
		check := v.VerifyNonce(context.Background(), address, submitted)
		assert.True(t, check.Valid)
		assert.Nil(t, check.OnChain)
	})
}
