// Package starknet wraps the JSON-RPC surface the indexer and the
// settlement bot need: contract reads on the Stela contract, event
// polling and invoke submission through the bot account.
package starknet

import (
	"context"
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/common/errs"
)

type Client interface {
	// Contract reads
	GetInscription(ctx context.Context, idLow, idHigh *felt.Felt) (*InscriptionView, error)
	GetLocker(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error)
	ContractNonce(ctx context.Context, address *felt.Felt) (*felt.Felt, error)
	IsValidSignature(ctx context.Context, signer, messageHash *felt.Felt, signature []*felt.Felt) ([]*felt.Felt, error)

	// Chain reads
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
	Events(ctx context.Context, params EventsParams) (*EventsPage, error)
	TransactionCalldata(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error)

	// Writes through the bot account
	Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error)
	WaitForReceipt(ctx context.Context, txHash *felt.Felt) error
}

// InscriptionView is the decoded result of get_inscription: the scalar
// terms plus the three asset list lengths.
type InscriptionView struct {
	MultiLender     bool
	Duration        uint64
	Deadline        uint64
	DebtCount       uint64
	InterestCount   uint64
	CollateralCount uint64
}

type EventsParams struct {
	FromBlock         uint64
	ToBlock           uint64
	Keys              []*felt.Felt
	ContinuationToken string
	ChunkSize         int
}

type EventsPage struct {
	Events            []rpc.EmittedEvent
	ContinuationToken string
}

type Config struct {
	RpcURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`

	// Bot account credentials, required only when the settlement bot is
	// enabled.
	AccountAddress    string `mapstructure:"account_address"`
	AccountPublicKey  string `mapstructure:"account_public_key"`
	AccountPrivateKey string `mapstructure:"account_private_key"`
}

type client struct {
	provider *rpc.Provider
	account  *account.Account
	contract *felt.Felt
}

var (
	selectorGetInscription   = utils.GetSelectorFromNameFelt("get_inscription")
	selectorGetLocker        = utils.GetSelectorFromNameFelt("get_locker")
	selectorNonces           = utils.GetSelectorFromNameFelt("nonces")
	selectorIsValidSignature = utils.GetSelectorFromNameFelt("is_valid_signature")
)

func NewClient(config Config) (Client, error) {
	if config.RpcURL == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "starknet rpc url is required")
	}
	provider, err := rpc.NewProvider(config.RpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create starknet provider")
	}
	contract, err := utils.HexToFelt(config.ContractAddress)
	if err != nil {
		return nil, errors.Wrap(err, "invalid contract address")
	}

	c := &client{provider: provider, contract: contract}

	if config.AccountAddress != "" {
		accountAddress, err := utils.HexToFelt(config.AccountAddress)
		if err != nil {
			return nil, errors.Wrap(err, "invalid account address")
		}
		privateKey, ok := new(big.Int).SetString(config.AccountPrivateKey, 0)
		if !ok {
			return nil, errors.Wrap(errs.InvalidArgument, "invalid account private key")
		}
		ks := account.NewMemKeystore()
		ks.Put(config.AccountPublicKey, privateKey)
		acct, err := account.NewAccount(provider, accountAddress, config.AccountPublicKey, ks, account.CairoV2)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create starknet account")
		}
		c.account = acct
	}
	return c, nil
}

func (c *client) call(ctx context.Context, selector *felt.Felt, calldata []*felt.Felt) ([]*felt.Felt, error) {
	result, err := c.provider.Call(ctx, rpc.FunctionCall{
		ContractAddress:    c.contract,
		EntryPointSelector: selector,
		Calldata:           calldata,
	}, rpc.BlockID{Tag: "latest"})
	if err != nil {
		return nil, errors.Wrap(err, "contract call failed")
	}
	return result, nil
}

func (c *client) GetInscription(ctx context.Context, idLow, idHigh *felt.Felt) (*InscriptionView, error) {
	result, err := c.call(ctx, selectorGetInscription, []*felt.Felt{idLow, idHigh})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// multi_lender, duration, deadline, debt_count, interest_count, collateral_count
	if len(result) < 6 {
		return nil, errors.Wrapf(errs.InvalidArgument, "get_inscription returned %d felts, want 6", len(result))
	}
	view := &InscriptionView{MultiLender: !result[0].IsZero()}
	for i, dst := range []*uint64{&view.Duration, &view.Deadline, &view.DebtCount, &view.InterestCount, &view.CollateralCount} {
		value := utils.FeltToBigInt(result[i+1])
		if !value.IsUint64() {
			return nil, errors.Wrapf(errs.InvalidArgument, "get_inscription field %d exceeds uint64", i+1)
		}
		*dst = value.Uint64()
	}
	return view, nil
}

func (c *client) GetLocker(ctx context.Context, idLow, idHigh *felt.Felt) (*felt.Felt, error) {
	result, err := c.call(ctx, selectorGetLocker, []*felt.Felt{idLow, idHigh})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(result) == 0 {
		return nil, errors.Wrap(errs.InvalidArgument, "get_locker returned no result")
	}
	return result[0], nil
}

func (c *client) ContractNonce(ctx context.Context, address *felt.Felt) (*felt.Felt, error) {
	result, err := c.call(ctx, selectorNonces, []*felt.Felt{address})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(result) == 0 {
		return nil, errors.Wrap(errs.InvalidArgument, "nonces returned no result")
	}
	return result[0], nil
}

func (c *client) IsValidSignature(ctx context.Context, signer, messageHash *felt.Felt, signature []*felt.Felt) ([]*felt.Felt, error) {
	calldata := make([]*felt.Felt, 0, 2+len(signature))
	calldata = append(calldata, messageHash, new(felt.Felt).SetUint64(uint64(len(signature))))
	calldata = append(calldata, signature...)

	result, err := c.provider.Call(ctx, rpc.FunctionCall{
		ContractAddress:    signer,
		EntryPointSelector: selectorIsValidSignature,
		Calldata:           calldata,
	}, rpc.BlockID{Tag: "latest"})
	if err != nil {
		return nil, errors.Wrap(err, "is_valid_signature call failed")
	}
	return result, nil
}

func (c *client) BlockNumber(ctx context.Context) (uint64, error) {
	blockNumber, err := c.provider.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block number")
	}
	return blockNumber, nil
}

func (c *client) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	result, err := c.provider.BlockWithTxHashes(ctx, rpc.BlockID{Number: &blockNumber})
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to get block")
	}
	block, ok := result.(*rpc.BlockTxHashes)
	if !ok {
		return time.Time{}, errors.Wrapf(errs.InternalError, "unexpected block type %T", result)
	}
	return time.Unix(int64(block.Timestamp), 0).UTC(), nil
}

func (c *client) Events(ctx context.Context, params EventsParams) (*EventsPage, error) {
	fromBlock := params.FromBlock
	toBlock := params.ToBlock
	chunkSize := params.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	result, err := c.provider.Events(ctx, rpc.EventsInput{
		EventFilter: rpc.EventFilter{
			FromBlock: rpc.BlockID{Number: &fromBlock},
			ToBlock:   rpc.BlockID{Number: &toBlock},
			Address:   c.contract,
			Keys:      [][]*felt.Felt{params.Keys},
		},
		ResultPageRequest: rpc.ResultPageRequest{
			ContinuationToken: params.ContinuationToken,
			ChunkSize:         chunkSize,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}
	return &EventsPage{
		Events:            result.Events,
		ContinuationToken: result.ContinuationToken,
	}, nil
}

func (c *client) TransactionCalldata(ctx context.Context, txHash *felt.Felt) ([]*felt.Felt, error) {
	tx, err := c.provider.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	switch txn := tx.Transaction.(type) {
	case rpc.InvokeTxnV0:
		return txn.Calldata, nil
	case rpc.InvokeTxnV1:
		return txn.Calldata, nil
	case rpc.InvokeTxnV3:
		return txn.Calldata, nil
	case *rpc.InvokeTxnV0:
		return txn.Calldata, nil
	case *rpc.InvokeTxnV1:
		return txn.Calldata, nil
	case *rpc.InvokeTxnV3:
		return txn.Calldata, nil
	default:
		return nil, errors.Wrapf(errs.NotFound, "transaction %s has no invoke calldata", txHash.String())
	}
}

func (c *client) Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error) {
	if c.account == nil {
		return nil, errors.Wrap(errs.InvalidArgument, "no bot account configured")
	}
	tx, err := c.account.BuildAndSendInvokeTxn(ctx, calls, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send invoke transaction")
	}
	return tx.Hash, nil
}

func (c *client) WaitForReceipt(ctx context.Context, txHash *felt.Felt) error {
	if c.account == nil {
		return errors.Wrap(errs.InvalidArgument, "no bot account configured")
	}
	if _, err := c.account.WaitForTransactionReceipt(ctx, txHash, 2*time.Second); err != nil {
		return errors.Wrap(err, "failed waiting for transaction receipt")
	}
	return nil
}
