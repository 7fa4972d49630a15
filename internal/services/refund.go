package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/models"
	"github.com/DalaiLlaama/card/internal/stores"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type Refunder interface {
	Refund(ctx context.Context, amount *big.Int) error
}

// Returns excess wallet funds to the most recent sender. At most one refund is in flight,
// tracked by the persisted refund marker.
type RefundProtocol struct {
	ledger  Ledger
	markers stores.MarkerStore
	senders *SenderScanner
	wallet  common.Address
	log     zerolog.Logger

	broadcastTimeout time.Duration
}

func NewRefundProtocol(ledger Ledger, markers stores.MarkerStore, wallet common.Address, log zerolog.Logger) *RefundProtocol {
	return &RefundProtocol{
		ledger:           ledger,
		markers:          markers,
		senders:          NewSenderScanner(ledger),
		wallet:           wallet,
		log:              log.With().Str("component", "refund").Logger(),
		broadcastTimeout: constants.DefaultIOTimeout,
	}
}

func (r *RefundProtocol) Refund(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}

	existing, err := r.markers.RefundMarker(ctx)
	if err != nil {
		return fmt.Errorf("read refund marker: %w", err)
	}
	if existing != nil {
		return stores.ErrRefundInFlight
	}

	recipient, err := r.senders.LatestSender(ctx, r.wallet)
	if err != nil {
		return err
	}

	balance, err := r.ledger.BalanceAt(ctx, r.wallet)
	if err != nil {
		return fmt.Errorf("BalanceAt: %w", err)
	}

	raw, hash, err := r.ledger.SignTransfer(ctx, r.wallet, recipient, amount)
	if err != nil {
		return fmt.Errorf("sign refund: %w", err)
	}

	marker := &models.RefundMarker{
		InFlight:        true,
		Amount:          new(big.Int).Set(amount),
		Recipient:       recipient,
		OriginalBalance: balance,
		TxHash:          hash,
	}
	// loses to any concurrent cycle that got here first
	if err := r.markers.BeginRefund(ctx, marker); err != nil {
		return err
	}

	// the broadcast and its marker update run to completion once started
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.broadcastTimeout)
	defer cancel()

	if err := r.ledger.BroadcastTx(bctx, raw); err != nil {
		if cerr := r.markers.ClearRefund(bctx); cerr != nil {
			r.log.Error().Err(cerr).Msg("clear refund marker after failed broadcast")
		}
		return fmt.Errorf("broadcast refund: %w", err)
	}

	marker.ExpectedMaxBalance = new(big.Int).Sub(balance, amount)
	if err := r.markers.UpdateRefund(bctx, marker); err != nil {
		return fmt.Errorf("record refund broadcast: %w", err)
	}

	r.log.Info().
		Str("amount", amount.String()).
		Str("recipient", recipient.Hex()).
		Str("tx", hash).
		Str("expectedMaxBalance", marker.ExpectedMaxBalance.String()).
		Msg("refund broadcast")
	return nil
}

// Resolves a marker left behind before its broadcast was recorded. A transfer the ledger
// knows about is promoted to the broadcast stage, anything else is cleared.
func (r *RefundProtocol) Recover(ctx context.Context) error {
	marker, err := r.markers.RefundMarker(ctx)
	if errors.Is(err, stores.ErrCorruptMarker) {
		// unreadable markers would abort every deposit cycle
		r.log.Error().Err(err).Msg("clearing corrupt refund marker")
		return r.markers.ClearRefund(ctx)
	}
	if err != nil {
		return fmt.Errorf("read refund marker: %w", err)
	}
	if marker == nil || marker.Broadcast() {
		return nil
	}

	if marker.TxHash != "" && marker.Amount != nil && marker.OriginalBalance != nil {
		known, err := r.ledger.TransactionKnown(ctx, marker.TxHash)
		if err != nil {
			return fmt.Errorf("TransactionKnown(%s): %w", marker.TxHash, err)
		}
		if known {
			marker.ExpectedMaxBalance = new(big.Int).Sub(marker.OriginalBalance, marker.Amount)
			r.log.Info().Str("tx", marker.TxHash).Msg("recovered broadcast refund")
			return r.markers.UpdateRefund(ctx, marker)
		}
	}

	r.log.Warn().Str("tx", marker.TxHash).Msg("clearing unbroadcast refund marker")
	return r.markers.ClearRefund(ctx)
}

// Decides whether a deposit cycle may continue given the marker state and the wallet balance.
// A settled refund is cleared on the way.
func settleRefund(ctx context.Context, markers stores.MarkerStore, balance *big.Int) (bool, error) {
	marker, err := markers.RefundMarker(ctx)
	if err != nil {
		return false, fmt.Errorf("read refund marker: %w", err)
	}
	if marker == nil {
		return true, nil
	}
	if !marker.SettledBy(balance) {
		return false, nil
	}
	if err := markers.ClearRefund(ctx); err != nil {
		return false, fmt.Errorf("clear refund marker: %w", err)
	}
	return true, nil
}
