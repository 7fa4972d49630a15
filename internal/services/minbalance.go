package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/models"
	"github.com/DalaiLlaama/card/internal/utils/units"
)

// Tracks the wallet balance kept back to pay gas for future deposits
type MinimumBalanceEstimator struct {
	ledger Ledger
	state  *ChannelStateStore

	mu      sync.RWMutex
	current *models.MinimumBalance
}

func NewMinimumBalanceEstimator(ledger Ledger, state *ChannelStateStore) *MinimumBalanceEstimator {
	return &MinimumBalanceEstimator{ledger: ledger, state: state}
}

// Recomputes the minimum from the current gas price and exchange rate. On failure the previous
// estimate is kept.
func (m *MinimumBalanceEstimator) Refresh(ctx context.Context) error {
	gasPrice, err := m.ledger.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("SuggestGasPrice: %w", err)
	}

	wei := new(big.Int).Mul(gasPrice, big.NewInt(constants.DepositEstimatedGas*constants.DepositGasMultiple))
	dai := new(big.Int)
	if rt := m.state.Snapshot().Runtime; rt != nil {
		dai = units.WeiToToken(wei, rt.ExchangeRate)
	}

	m.mu.Lock()
	m.current = &models.MinimumBalance{Wei: wei, Dai: dai}
	m.mu.Unlock()
	return nil
}

// Returns nil until the first successful Refresh
func (m *MinimumBalanceEstimator) Current() *models.MinimumBalance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	return &models.MinimumBalance{
		Wei: new(big.Int).Set(m.current.Wei),
		Dai: new(big.Int).Set(m.current.Dai),
	}
}
