package services

import (
	"context"
	"math/big"
	"sync"

	"github.com/DalaiLlaama/card/internal/models"
)

// External payment-channel client
type ChannelClient interface {
	Start(ctx context.Context) error
	Deposit(ctx context.Context, deposit models.Deposit) error
	Exchange(ctx context.Context, amount *big.Int, currency models.Currency) error
	Buy(ctx context.Context, payment models.PaymentRequest) error
	OnStateChange(fn func(models.ChannelSnapshot))
	Options() models.ChannelOptions
}

// Latest channel and runtime state pushed by the channel client. Every read returns a copy,
// so callers can hold on to it for a whole cycle while pushes replace the stored snapshot.
type ChannelStateStore struct {
	mu      sync.RWMutex
	channel *models.ChannelState
	runtime *models.RuntimeState
}

func NewChannelStateStore() *ChannelStateStore {
	return &ChannelStateStore{}
}

// Replaces the stored snapshot wholesale. Nil parts stay "not loaded".
func (s *ChannelStateStore) Update(snap models.ChannelSnapshot) {
	s.mu.Lock()
	s.channel = snap.Channel.Clone()
	s.runtime = snap.Runtime.Clone()
	s.mu.Unlock()
}

func (s *ChannelStateStore) Snapshot() models.ChannelSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.ChannelSnapshot{
		Channel: s.channel.Clone(),
		Runtime: s.runtime.Clone(),
	}
}

// User token balance in the channel, zero when not loaded
func (s *ChannelStateStore) TokenBalance() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.channel == nil || s.channel.BalanceTokenUser == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.channel.BalanceTokenUser)
}

// Hub token balance in the channel, zero when not loaded
func (s *ChannelStateStore) HubCollateral() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.channel == nil || s.channel.BalanceTokenHub == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.channel.BalanceTokenHub)
}
