package services

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/DalaiLlaama/card/internal/models"
	"github.com/DalaiLlaama/card/internal/stores"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	testWallet = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testSender = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newTestMarkers(t *testing.T) *stores.LocalMarkerStore {
	t.Helper()
	s, err := stores.NewLocalMarkerStore(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewLocalMarkerStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// whole tokens (or ether) in minor units
func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func channelSnapshot(tokenUser, weiUser *big.Int, rt *models.RuntimeState) models.ChannelSnapshot {
	return models.ChannelSnapshot{
		Channel: &models.ChannelState{
			BalanceTokenUser: tokenUser,
			BalanceWeiUser:   weiUser,
			BalanceTokenHub:  big.NewInt(0),
			BalanceWeiHub:    big.NewInt(0),
		},
		Runtime: rt,
	}
}

func runtimeState(canDeposit, canExchange bool, rate string) *models.RuntimeState {
	return &models.RuntimeState{
		CanDeposit:   canDeposit,
		CanExchange:  canExchange,
		ExchangeRate: decimal.RequireFromString(rate),
	}
}

func storeWith(snap models.ChannelSnapshot) *ChannelStateStore {
	s := NewChannelStateStore()
	s.Update(snap)
	return s
}
