package constants

import (
	"math/big"
	"time"
)

const (
	KeyStorePath  = "./tmp/keys"
	MarkerDbPath  = "./tmp/store.db"
	DefaultWsAddr = ":1337"

	DefaultNetwork   = "ROPSTEN"
	DefaultPublicUrl = "localhost"

	MaxHistoryItems = 20

	// blocks scanned backwards from head when resolving a refund recipient
	RefundScanDepth = 100

	DepositEstimatedGas = 700000
	// gas headroom multiple applied on top of the channel client's own 1.5x
	DepositGasMultiple = 2

	TokenDecimals = 18

	DefaultDepositInterval   = 5 * time.Second
	DefaultSwapInterval      = 1 * time.Second
	DefaultStatusInterval    = 400 * time.Millisecond
	DefaultCustodialInterval = 5 * time.Second
	DefaultIOTimeout         = 30 * time.Second
)

var (
	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// 69 tokens, the most the hub will exchange into a channel
	HubExchangeCeiling = new(big.Int).Mul(weiPerEther, big.NewInt(69))
	// 30 tokens, the most a single channel deposit may reach
	ChannelDepositMax = new(big.Int).Mul(weiPerEther, big.NewInt(30))

	// 1 token
	DefaultLowBalanceThreshold = new(big.Int).Set(weiPerEther)
)

// DepositCeilingApprox is the channel token balance, in whole tokens, at which deposits stop
// and excess wallet funds are refunded. It sits just under ChannelDepositMax to absorb rounding.
const DepositCeilingApprox = "29.8"

// ChannelCeiling returns min(HubExchangeCeiling, ChannelDepositMax).
func ChannelCeiling() *big.Int {
	if HubExchangeCeiling.Cmp(ChannelDepositMax) < 0 {
		return new(big.Int).Set(HubExchangeCeiling)
	}
	return new(big.Int).Set(ChannelDepositMax)
}
