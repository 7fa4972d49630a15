package services

import (
	"context"
	"fmt"

	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/models"

	"github.com/rs/zerolog"
)

// Exchanges wei held in the channel for tokens while the hub still accepts them
type SwapReconciler struct {
	channel ChannelClient
	state   *ChannelStateStore
	log     zerolog.Logger
}

func NewSwapReconciler(channel ChannelClient, state *ChannelStateStore, log zerolog.Logger) *SwapReconciler {
	return &SwapReconciler{
		channel: channel,
		state:   state,
		log:     log.With().Str("component", "swap").Logger(),
	}
}

func (s *SwapReconciler) Reconcile(ctx context.Context) error {
	snap := s.state.Snapshot()
	if snap.Channel == nil || snap.Runtime == nil || !snap.Runtime.CanExchange {
		return nil
	}

	wei := balanceOrZero(snap.Channel.BalanceWeiUser)
	token := balanceOrZero(snap.Channel.BalanceTokenUser)
	if wei.Sign() <= 0 || token.Cmp(constants.HubExchangeCeiling) > 0 {
		return nil
	}

	if err := s.channel.Exchange(ctx, wei, models.CurrencyWei); err != nil {
		return fmt.Errorf("exchange %s wei: %w", wei, err)
	}
	s.log.Info().Str("wei", wei.String()).Msg("exchange requested")
	return nil
}
