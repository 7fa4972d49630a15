package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyWei   Currency = "wei"
	CurrencyToken Currency = "token"
)

// User and hub balances of the off-chain channel, in minor units.
type ChannelState struct {
	BalanceTokenUser *big.Int `json:"balanceTokenUser"`
	BalanceWeiUser   *big.Int `json:"balanceWeiUser"`
	BalanceTokenHub  *big.Int `json:"balanceTokenHub"`
	BalanceWeiHub    *big.Int `json:"balanceWeiHub"`
}

func (c *ChannelState) Clone() *ChannelState {
	if c == nil {
		return nil
	}
	return &ChannelState{
		BalanceTokenUser: cloneBig(c.BalanceTokenUser),
		BalanceWeiUser:   cloneBig(c.BalanceWeiUser),
		BalanceTokenHub:  cloneBig(c.BalanceTokenHub),
		BalanceWeiHub:    cloneBig(c.BalanceWeiHub),
	}
}

type SyncReason string

const (
	ReasonProposePendingDeposit    SyncReason = "ProposePendingDeposit"
	ReasonProposePendingWithdrawal SyncReason = "ProposePendingWithdrawal"
	ReasonConfirmPending           SyncReason = "ConfirmPending"
)

const SyncTypeThread = "thread"

type ChannelUpdate struct {
	Reason  SyncReason        `json:"reason"`
	TxCount uint64            `json:"txCount"`
	Args    map[string]string `json:"args"`
}

// Reports whether the amount argument `key` is present and not zero
func (u ChannelUpdate) NonZeroArg(key string) bool {
	v, ok := u.Args[key]
	if !ok || v == "" {
		return false
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return v != "0"
	}
	return n.Sign() != 0
}

type SyncResult struct {
	Type   string        `json:"type"`
	Update ChannelUpdate `json:"update"`
}

// Identity of a sync result, used to handle each one once
func (s SyncResult) Key() string {
	return fmt.Sprintf("%s:%s:%d:%v", s.Type, s.Update.Reason, s.Update.TxCount, s.Update.Args)
}

type RuntimeState struct {
	CanDeposit   bool            `json:"canDeposit"`
	CanExchange  bool            `json:"canExchange"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	// newest first
	SyncResultsFromHub []SyncResult `json:"syncResultsFromHub"`
}

func (r *RuntimeState) Clone() *RuntimeState {
	if r == nil {
		return nil
	}
	out := *r
	out.SyncResultsFromHub = append([]SyncResult(nil), r.SyncResultsFromHub...)
	return &out
}

// State pushed by the channel client on every change
type ChannelSnapshot struct {
	Channel *ChannelState
	Runtime *RuntimeState
}

type ChannelOptions struct {
	TokenAddress    common.Address `json:"tokenAddress"`
	ContractAddress common.Address `json:"contractAddress"`
	HubAddress      common.Address `json:"hubAddress"`
	EthNetworkID    uint64         `json:"ethNetworkId"`
}

// Minimum base-ledger balance kept in the wallet to pay for future deposits
type MinimumBalance struct {
	Wei *big.Int
	Dai *big.Int
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
