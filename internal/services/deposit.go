package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/models"
	"github.com/DalaiLlaama/card/internal/stores"
	"github.com/DalaiLlaama/card/internal/utils/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Moves wallet funds into the channel, handing anything above the channel ceiling to the refunder
type DepositReconciler struct {
	ledger   Ledger
	channel  ChannelClient
	state    *ChannelStateStore
	markers  stores.MarkerStore
	minimum  *MinimumBalanceEstimator
	refunder Refunder
	history  *History
	wallet   common.Address
	log      zerolog.Logger

	// channel token balance at which deposits stop
	depositCeiling *big.Int
}

func NewDepositReconciler(
	ledger Ledger,
	channel ChannelClient,
	state *ChannelStateStore,
	markers stores.MarkerStore,
	minimum *MinimumBalanceEstimator,
	refunder Refunder,
	history *History,
	wallet common.Address,
	log zerolog.Logger,
) (*DepositReconciler, error) {
	ceiling, err := units.ToMinorUnits(constants.DepositCeilingApprox, constants.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("deposit ceiling: %w", err)
	}
	return &DepositReconciler{
		ledger:         ledger,
		channel:        channel,
		state:          state,
		markers:        markers,
		minimum:        minimum,
		refunder:       refunder,
		history:        history,
		wallet:         wallet,
		log:            log.With().Str("component", "deposit").Logger(),
		depositCeiling: ceiling,
	}, nil
}

func (d *DepositReconciler) Reconcile(ctx context.Context) error {
	if err := d.minimum.Refresh(ctx); err != nil {
		d.log.Warn().Err(err).Msg("refresh minimum balance")
	}
	minimum := d.minimum.Current()
	if minimum == nil {
		d.log.Debug().Msg("minimum balance not computed yet")
		return nil
	}

	balance, err := d.ledger.BalanceAt(ctx, d.wallet)
	if err != nil {
		return fmt.Errorf("BalanceAt: %w", err)
	}

	proceed, err := settleRefund(ctx, d.markers, balance)
	if err != nil {
		return err
	}
	if !proceed {
		d.log.Debug().Str("balance", balance.String()).Msg("refund still in flight")
		return nil
	}

	token, err := d.ledger.TokenBalanceAt(ctx, d.channel.Options().TokenAddress, d.wallet)
	if err != nil {
		d.log.Warn().Err(err).Msg("token balance unavailable, depositing wei only")
		token = new(big.Int)
	}

	if balance.Sign() == 0 && token.Sign() == 0 {
		return nil
	}
	if balance.Cmp(minimum.Wei) < 0 {
		d.log.Debug().Str("balance", balance.String()).Str("minimum", minimum.Wei.String()).Msg("wallet below minimum balance")
		return nil
	}

	snap := d.state.Snapshot()
	if snap.Channel == nil || snap.Runtime == nil {
		return nil
	}
	if !snap.Runtime.CanDeposit || !snap.Runtime.ExchangeRate.IsPositive() {
		return nil
	}

	spendable := new(big.Int).Sub(balance, minimum.Wei)

	if channelToken := balanceOrZero(snap.Channel.BalanceTokenUser); channelToken.Cmp(d.depositCeiling) >= 0 {
		d.log.Info().Str("channelToken", channelToken.String()).Msg("channel at ceiling, returning wallet funds")
		return d.refund(ctx, spendable)
	}

	deposit, err := models.NewDeposit(spendable, token)
	if err != nil {
		return err
	}
	if deposit.IsZero() {
		return nil
	}

	ceilingWei, err := units.TokenToWei(constants.ChannelCeiling(), snap.Runtime.ExchangeRate)
	if err != nil {
		return err
	}
	weiToReturn := new(big.Int).Sub(deposit.AmountWei, ceilingWei)
	if weiToReturn.Sign() > 0 {
		d.log.Info().Str("excess", weiToReturn.String()).Msg("deposit above channel ceiling, returning excess")
		return d.refund(ctx, weiToReturn)
	}

	if err := d.channel.Deposit(ctx, *deposit); err != nil {
		return fmt.Errorf("channel deposit: %w", err)
	}
	d.history.Add(deposit.String())
	d.log.Info().Str("wei", deposit.AmountWei.String()).Str("token", deposit.AmountToken.String()).Msg("deposit submitted")
	return nil
}

func (d *DepositReconciler) refund(ctx context.Context, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	err := d.refunder.Refund(ctx, amount)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrRefundInFlight):
		d.log.Debug().Msg("another refund is in flight")
		return nil
	case errors.Is(err, ErrNoRefundRecipient):
		d.log.Warn().Str("amount", amount.String()).Msg("no sender found to refund, keeping funds")
		return nil
	default:
		return err
	}
}

func balanceOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
