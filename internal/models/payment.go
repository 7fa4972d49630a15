package models

import (
	"fmt"
	"math/big"

	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/utils/address"
	"github.com/DalaiLlaama/card/internal/utils/units"

	"github.com/ethereum/go-ethereum/common"
)

type PaymentType string

const (
	PaymentTypeChannel PaymentType = "PT_CHANNEL"

	PurchaseIDPayment = "payment"
)

// Single-recipient channel payment of `Amount` token minor units
type PaymentRequest struct {
	PurchaseID string         `json:"purchaseId"`
	Recipient  common.Address `json:"recipient"`
	Amount     *big.Int       `json:"amountToken"`
	Type       PaymentType    `json:"type"`
}

// Builds a payment from a recipient address and a decimal amount of whole tokens
func NewPaymentRequest(recipient string, amount string) (*PaymentRequest, error) {
	to, err := address.Parse(recipient)
	if err != nil {
		return nil, err
	}
	minor, err := units.ToMinorUnits(amount, constants.TokenDecimals)
	if err != nil {
		return nil, err
	}
	if minor.Sign() <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	return &PaymentRequest{
		PurchaseID: PurchaseIDPayment,
		Recipient:  to,
		Amount:     minor,
		Type:       PaymentTypeChannel,
	}, nil
}

func (p *PaymentRequest) String() string {
	return fmt.Sprintf("Payment of %s to %s. Type: %s", units.FromMinorUnits(p.Amount, constants.TokenDecimals), p.Recipient.Hex(), p.Type)
}
