package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Value transfer seen in a base-ledger block
type LedgerTx struct {
	Hash        string
	BlockNumber uint64
	From        common.Address
	To          common.Address
	Nonce       uint64
	Value       *big.Int
}
