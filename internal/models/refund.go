package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Persisted record of the single refund allowed in flight.
// A marker without ExpectedMaxBalance has not been confirmed broadcast yet.
type RefundMarker struct {
	InFlight        bool           `json:"in_flight"`
	Amount          *big.Int       `json:"amount"`
	Recipient       common.Address `json:"recipient"`
	OriginalBalance *big.Int       `json:"original_balance"`
	TxHash          string         `json:"tx_hash,omitempty"`

	// stored under its own key
	ExpectedMaxBalance *big.Int `json:"-"`
}

func (m *RefundMarker) Broadcast() bool {
	return m != nil && m.ExpectedMaxBalance != nil
}

// Reports whether the wallet balance shows the refund has left the wallet
func (m *RefundMarker) SettledBy(balance *big.Int) bool {
	return m.Broadcast() && balance.Cmp(m.ExpectedMaxBalance) <= 0
}
