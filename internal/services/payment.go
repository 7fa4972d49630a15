package services

import (
	"context"
	"errors"
	"sync"

	"github.com/DalaiLlaama/card/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrNotRunning          = errors.New("autopay is not running")
	ErrInsufficientBalance = errors.New("insufficient channel balance")
)

// Sends single-recipient channel payments while autopay is running
type PaymentExecutor struct {
	channel    ChannelClient
	balances   *ChannelStateStore
	controller *AutopayController
	history    *History
	log        zerolog.Logger

	// one payment at a time so balance checks see the previous payment's effect
	mu sync.Mutex
}

func NewPaymentExecutor(channel ChannelClient, balances *ChannelStateStore, controller *AutopayController, history *History, log zerolog.Logger) *PaymentExecutor {
	return &PaymentExecutor{
		channel:    channel,
		balances:   balances,
		controller: controller,
		history:    history,
		log:        log.With().Str("component", "payment").Logger(),
	}
}

// Pays `amount` whole tokens to `recipient`. A failed submission is logged and does not
// return an error; only requests rejected before submission do.
func (p *PaymentExecutor) SendPayment(ctx context.Context, recipient string, amount string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state := p.controller.State(); state != models.AutopayRunning {
		p.log.Info().Str("state", string(state)).Msg("payment requested but autopay is not running")
		return ErrNotRunning
	}

	req, err := models.NewPaymentRequest(recipient, amount)
	if err != nil {
		return err
	}

	if balance := p.balances.TokenBalance(); balance.Cmp(req.Amount) < 0 {
		p.log.Warn().Str("amount", req.Amount.String()).Str("balance", balance.String()).Msg("payment declined, amount exceeds balance")
		return ErrInsufficientBalance
	}

	if err := p.channel.Buy(ctx, *req); err != nil {
		p.log.Error().Err(err).Str("recipient", req.Recipient.Hex()).Msg("payment failed")
	} else {
		p.history.Add(req.String())
		p.log.Info().Str("amount", req.Amount.String()).Str("recipient", req.Recipient.Hex()).Msg("payment sent")
	}

	p.controller.CheckLowBalance()
	return nil
}
