package services

import (
	"github.com/DalaiLlaama/card/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Assembles the status snapshot published to control-plane peers
type StatusBoard struct {
	wallet     common.Address
	balances   *ChannelStateStore
	history    *History
	controller *AutopayController
	sync       *SyncStatusWatcher
}

func NewStatusBoard(wallet common.Address, balances *ChannelStateStore, history *History, controller *AutopayController, sync *SyncStatusWatcher) *StatusBoard {
	return &StatusBoard{
		wallet:     wallet,
		balances:   balances,
		history:    history,
		controller: controller,
		sync:       sync,
	}
}

func (b *StatusBoard) Status() models.Status {
	st := models.Status{
		Address:       b.wallet.Hex(),
		Balance:       b.balances.TokenBalance().String(),
		TxHistory:     b.history.Entries(),
		HubCollateral: b.balances.HubCollateral().String(),
		Status:        b.controller.State(),
	}
	if b.sync != nil {
		st.Sync = b.sync.Status()
	}
	return st
}
