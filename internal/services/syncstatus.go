package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/DalaiLlaama/card/internal/models"
	"github.com/DalaiLlaama/card/internal/stores"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type TopupChecker interface {
	CheckTopup()
}

// Follows hub sync results to report pending and confirmed deposits and withdrawals
type SyncStatusWatcher struct {
	state   *ChannelStateStore
	markers stores.MarkerStore
	history *History
	topup   TopupChecker
	log     zerolog.Logger

	mu          sync.RWMutex
	status      models.SyncStatus
	lastHandled string
}

func NewSyncStatusWatcher(state *ChannelStateStore, markers stores.MarkerStore, history *History, topup TopupChecker, log zerolog.Logger) *SyncStatusWatcher {
	return &SyncStatusWatcher{
		state:   state,
		markers: markers,
		history: history,
		topup:   topup,
		log:     log.With().Str("component", "sync").Logger(),
	}
}

func (w *SyncStatusWatcher) Check(ctx context.Context) error {
	if w.topup != nil {
		defer w.topup.CheckTopup()
	}

	snap := w.state.Snapshot()

	w.mu.Lock()
	if snap.Runtime != nil && len(snap.Runtime.SyncResultsFromHub) > 0 {
		w.handle(snap.Runtime.SyncResultsFromHub[0])
	}
	w.mu.Unlock()

	marker, err := w.markers.RefundMarker(ctx)
	if err != nil {
		return fmt.Errorf("read refund marker: %w", err)
	}

	var refund *models.RefundIndicator
	if marker != nil {
		refund = &models.RefundIndicator{Amount: "0"}
		if marker.Amount != nil {
			refund.Amount = marker.Amount.String()
		}
		if marker.Recipient != (common.Address{}) {
			refund.Recipient = marker.Recipient.Hex()
		}
	}

	w.mu.Lock()
	w.status.HasRefund = refund
	w.mu.Unlock()
	return nil
}

// caller holds w.mu
func (w *SyncStatusWatcher) handle(result models.SyncResult) {
	// multi-hop thread updates are not handled
	if result.Type == models.SyncTypeThread {
		return
	}
	key := result.Key()
	if key == w.lastHandled {
		return
	}
	w.lastHandled = key

	u := result.Update
	switch u.Reason {
	case models.ReasonProposePendingDeposit:
		if u.NonZeroArg("depositTokenUser") || u.NonZeroArg("depositWeiUser") {
			w.status.Deposit = models.TransferPending
		}
	case models.ReasonProposePendingWithdrawal:
		if u.NonZeroArg("withdrawalTokenUser") || u.NonZeroArg("withdrawalWeiUser") {
			w.status.Withdraw = models.TransferPending
		}
	case models.ReasonConfirmPending:
		w.history.Add(fmt.Sprintf("Confirmed pending update (txCount %d)", u.TxCount))
		if w.status.Deposit == models.TransferPending {
			w.status.Deposit = models.TransferSuccess
		} else if w.status.Withdraw == models.TransferPending {
			w.status.Withdraw = models.TransferSuccess
		}
	}
	w.log.Debug().Str("reason", string(u.Reason)).Str("deposit", string(w.status.Deposit)).Str("withdraw", string(w.status.Withdraw)).Msg("sync result handled")
}

func (w *SyncStatusWatcher) Status() models.SyncStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := w.status
	if w.status.HasRefund != nil {
		r := *w.status.HasRefund
		out.HasRefund = &r
	}
	return out
}
