package mocks

import (
	"context"
	"math/big"
	"sync"

	"github.com/DalaiLlaama/card/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type MockKeyStore struct {
	HasKeyResp bool
	SignTxFn   func(ctx context.Context, address string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

func (f *MockKeyStore) HasKey(ctx context.Context, addr string) bool {
	return f.HasKeyResp
}

func (f *MockKeyStore) SignTx(ctx context.Context, address string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if f.SignTxFn != nil {
		return f.SignTxFn(ctx, address, tx, chainID)
	}
	return tx, nil
}

type MockLedger struct {
	BalanceAtFn        func(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalanceAtFn   func(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error)
	SuggestGasPriceFn  func(ctx context.Context) (*big.Int, error)
	BlockNumberFn      func(ctx context.Context) (uint64, error)
	BlockTransfersFn   func(ctx context.Context, number uint64) ([]models.LedgerTx, error)
	SignTransferFn     func(ctx context.Context, from common.Address, to common.Address, amount *big.Int) (string, string, error)
	BroadcastTxFn      func(ctx context.Context, rawTx string) error
	TransactionKnownFn func(ctx context.Context, hash string) (bool, error)

	mu        sync.Mutex
	Broadcast []string
}

func (m *MockLedger) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if m.BalanceAtFn != nil {
		return m.BalanceAtFn(ctx, account)
	}
	return new(big.Int), nil
}

func (m *MockLedger) TokenBalanceAt(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error) {
	if m.TokenBalanceAtFn != nil {
		return m.TokenBalanceAtFn(ctx, token, owner)
	}
	return new(big.Int), nil
}

func (m *MockLedger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if m.SuggestGasPriceFn != nil {
		return m.SuggestGasPriceFn(ctx)
	}
	return big.NewInt(1), nil
}

func (m *MockLedger) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFn != nil {
		return m.BlockNumberFn(ctx)
	}
	return 0, nil
}

func (m *MockLedger) BlockTransfers(ctx context.Context, number uint64) ([]models.LedgerTx, error) {
	if m.BlockTransfersFn != nil {
		return m.BlockTransfersFn(ctx, number)
	}
	return nil, nil
}

func (m *MockLedger) SignTransfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) (string, string, error) {
	if m.SignTransferFn != nil {
		return m.SignTransferFn(ctx, from, to, amount)
	}
	return "0x01", "0xabc", nil
}

func (m *MockLedger) BroadcastTx(ctx context.Context, rawTx string) error {
	m.mu.Lock()
	m.Broadcast = append(m.Broadcast, rawTx)
	m.mu.Unlock()
	if m.BroadcastTxFn != nil {
		return m.BroadcastTxFn(ctx, rawTx)
	}
	return nil
}

func (m *MockLedger) TransactionKnown(ctx context.Context, hash string) (bool, error) {
	if m.TransactionKnownFn != nil {
		return m.TransactionKnownFn(ctx, hash)
	}
	return false, nil
}

func (m *MockLedger) BroadcastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Broadcast)
}

type MockChannelClient struct {
	StartFn    func(ctx context.Context) error
	DepositFn  func(ctx context.Context, d models.Deposit) error
	ExchangeFn func(ctx context.Context, amount *big.Int, currency models.Currency) error
	BuyFn      func(ctx context.Context, p models.PaymentRequest) error
	Opts       models.ChannelOptions

	mu        sync.Mutex
	Deposits  []models.Deposit
	Exchanges []*big.Int
	Payments  []models.PaymentRequest
	listeners []func(models.ChannelSnapshot)
}

func (m *MockChannelClient) Start(ctx context.Context) error {
	if m.StartFn != nil {
		return m.StartFn(ctx)
	}
	return nil
}

func (m *MockChannelClient) Deposit(ctx context.Context, d models.Deposit) error {
	m.mu.Lock()
	m.Deposits = append(m.Deposits, d)
	m.mu.Unlock()
	if m.DepositFn != nil {
		return m.DepositFn(ctx, d)
	}
	return nil
}

func (m *MockChannelClient) Exchange(ctx context.Context, amount *big.Int, currency models.Currency) error {
	m.mu.Lock()
	m.Exchanges = append(m.Exchanges, new(big.Int).Set(amount))
	m.mu.Unlock()
	if m.ExchangeFn != nil {
		return m.ExchangeFn(ctx, amount, currency)
	}
	return nil
}

func (m *MockChannelClient) Buy(ctx context.Context, p models.PaymentRequest) error {
	m.mu.Lock()
	m.Payments = append(m.Payments, p)
	m.mu.Unlock()
	if m.BuyFn != nil {
		return m.BuyFn(ctx, p)
	}
	return nil
}

func (m *MockChannelClient) OnStateChange(fn func(models.ChannelSnapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Delivers snap to every registered listener
func (m *MockChannelClient) Push(snap models.ChannelSnapshot) {
	m.mu.Lock()
	ls := append([]func(models.ChannelSnapshot){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range ls {
		fn(snap)
	}
}

func (m *MockChannelClient) Options() models.ChannelOptions {
	return m.Opts
}

func (m *MockChannelClient) PaymentList() []models.PaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PaymentRequest{}, m.Payments...)
}

func (m *MockChannelClient) DepositCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Deposits)
}

// Stubs the ethclient methods used by the EVM ledger
type MockEthBackend struct {
	BalanceAtFn         func(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContractFn      func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockByNumberFn     func(ctx context.Context, number *big.Int) (*types.Block, error)
	SendTransactionFn   func(ctx context.Context, tx *types.Transaction) error
	TransactionByHashFn func(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	ChainIDFn           func(ctx context.Context) (*big.Int, error)

	GasPrice *big.Int
	Head     uint64
	Nonce    uint64
	Chain    *big.Int
}

func (m *MockEthBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if m.BalanceAtFn != nil {
		return m.BalanceAtFn(ctx, account, blockNumber)
	}
	return new(big.Int), nil
}

func (m *MockEthBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.CallContractFn != nil {
		return m.CallContractFn(ctx, msg, blockNumber)
	}
	return nil, ethereum.NotFound
}

func (m *MockEthBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if m.GasPrice == nil {
		return big.NewInt(1), nil
	}
	return new(big.Int).Set(m.GasPrice), nil
}

func (m *MockEthBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return m.Head, nil
}

func (m *MockEthBackend) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	if m.BlockByNumberFn != nil {
		return m.BlockByNumberFn(ctx, number)
	}
	return nil, ethereum.NotFound
}

func (m *MockEthBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return m.Nonce, nil
}

func (m *MockEthBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if m.ChainIDFn != nil {
		return m.ChainIDFn(ctx)
	}
	if m.Chain == nil {
		return big.NewInt(1), nil
	}
	return new(big.Int).Set(m.Chain), nil
}

func (m *MockEthBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if m.SendTransactionFn != nil {
		return m.SendTransactionFn(ctx, tx)
	}
	return nil
}

func (m *MockEthBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if m.TransactionByHashFn != nil {
		return m.TransactionByHashFn(ctx, hash)
	}
	return nil, false, ethereum.NotFound
}
