package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/DalaiLlaama/card/internal/models"
	"github.com/DalaiLlaama/card/internal/stores"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	ethTransferGas = uint64(21000)

	erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"type":"function"}]`
)

var erc20ABI = mustParseABI(erc20BalanceOfABI)

// Base-ledger access used by the reconcilers
type Ledger interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalanceAt(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTransfers(ctx context.Context, number uint64) ([]models.LedgerTx, error)
	// Builds and signs a native transfer, returning the raw tx and its hash without sending it
	SignTransfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) (rawTx string, hash string, err error)
	BroadcastTx(ctx context.Context, rawTx string) error
	// Reports whether the node knows `hash`, pending or mined
	TransactionKnown(ctx context.Context, hash string) (bool, error)
}

// Subset of *ethclient.Client the ledger needs
type EthBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

type EvmLedger struct {
	client EthBackend
	ks     stores.KeyStore

	mu      sync.Mutex
	chainID *big.Int
}

func NewEvmLedger(client EthBackend, ks stores.KeyStore) *EvmLedger {
	return &EvmLedger{client: client, ks: ks}
}

func (l *EvmLedger) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return l.client.BalanceAt(ctx, account, nil)
}

func (l *EvmLedger) TokenBalanceAt(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", owner.Hex(), token.Hex(), err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("balanceOf returned %d values", len(vals))
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", vals[0])
	}
	return bal, nil
}

func (l *EvmLedger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return l.client.SuggestGasPrice(ctx)
}

func (l *EvmLedger) BlockNumber(ctx context.Context) (uint64, error) {
	return l.client.BlockNumber(ctx)
}

func (l *EvmLedger) BlockTransfers(ctx context.Context, number uint64) ([]models.LedgerTx, error) {
	block, err := l.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("BlockByNumber(%d): %w", number, err)
	}
	chainID, err := l.chain(ctx)
	if err != nil {
		return nil, err
	}
	signer := types.LatestSignerForChainID(chainID)

	out := make([]models.LedgerTx, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		to := tx.To()
		if to == nil {
			continue
		}
		from, err := types.Sender(signer, tx)
		if err != nil {
			continue
		}
		out = append(out, models.LedgerTx{
			Hash:        tx.Hash().Hex(),
			BlockNumber: number,
			From:        from,
			To:          *to,
			Nonce:       tx.Nonce(),
			Value:       new(big.Int).Set(tx.Value()),
		})
	}
	return out, nil
}

// Chain id is fetched once and reused for every later signer
func (l *EvmLedger) chain(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.chainID != nil {
		return l.chainID, nil
	}
	id, err := l.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("ChainID: %w", err)
	}
	l.chainID = id
	return id, nil
}

func (l *EvmLedger) SignTransfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) (string, string, error) {
	if ok := l.ks.HasKey(ctx, from.Hex()); !ok {
		return "", "", fmt.Errorf("private key not found for %s", from.Hex())
	}

	nonce, err := l.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", "", err
	}
	balance, err := l.client.BalanceAt(ctx, from, nil)
	if err != nil {
		return "", "", err
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", "", err
	}

	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(ethTransferGas))
	total := new(big.Int).Add(amount, gasCost)
	if balance.Cmp(total) < 0 {
		return "", "", fmt.Errorf("insufficient balance: have %s, need %s", balance, total)
	}

	chainID, err := l.chain(ctx)
	if err != nil {
		return "", "", err
	}

	tx := types.NewTransaction(nonce, to, amount, ethTransferGas, gasPrice, nil)
	signed, err := l.ks.SignTx(ctx, from.Hex(), tx, chainID)
	if err != nil {
		return "", "", fmt.Errorf("SignTx: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", "", fmt.Errorf("marshal tx: %w", err)
	}
	return hexutil.Encode(raw), signed.Hash().Hex(), nil
}

func (l *EvmLedger) BroadcastTx(ctx context.Context, rawTx string) error {
	b, err := hexutil.Decode(rawTx)
	if err != nil {
		return fmt.Errorf("decode tx: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("unmarshal tx: %w", err)
	}
	if err := l.client.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("SendTransaction: %w", err)
	}
	return nil
}

func (l *EvmLedger) TransactionKnown(ctx context.Context, hash string) (bool, error) {
	_, _, err := l.client.TransactionByHash(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
