package models

import (
	"fmt"
	"math/big"
)

type Deposit struct {
	AmountWei   *big.Int `json:"amountWei"`
	AmountToken *big.Int `json:"amountToken"`
}

func NewDeposit(amountWei *big.Int, amountToken *big.Int) (*Deposit, error) {
	if amountWei == nil || amountToken == nil {
		return nil, fmt.Errorf("deposit amounts must be set")
	}
	if amountWei.Sign() < 0 || amountToken.Sign() < 0 {
		return nil, fmt.Errorf("negative deposit: wei=%s token=%s", amountWei, amountToken)
	}
	return &Deposit{
		AmountWei:   new(big.Int).Set(amountWei),
		AmountToken: new(big.Int).Set(amountToken),
	}, nil
}

func (d *Deposit) IsZero() bool {
	return d.AmountWei.Sign() == 0 && d.AmountToken.Sign() == 0
}

func (d *Deposit) String() string {
	return fmt.Sprintf("Deposit of %s wei and %s tokens", d.AmountWei, d.AmountToken)
}
