package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNoRefundRecipient = errors.New("no recent sender to refund")

// Resolves who most recently funded an address by walking recent blocks
type SenderScanner struct {
	ledger Ledger
	depth  uint64
}

func NewSenderScanner(ledger Ledger) *SenderScanner {
	return &SenderScanner{ledger: ledger, depth: constants.RefundScanDepth}
}

// Scans blocks max(head-depth, 0)..head for transfers to `to` and returns the sender of the
// highest-nonce one. Equal nonces resolve to the later block.
func (s *SenderScanner) LatestSender(ctx context.Context, to common.Address) (common.Address, error) {
	head, err := s.ledger.BlockNumber(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("BlockNumber: %w", err)
	}
	var start uint64
	if head > s.depth {
		start = head - s.depth
	}

	var best *models.LedgerTx
	for n := start; n <= head; n++ {
		txs, err := s.ledger.BlockTransfers(ctx, n)
		if err != nil {
			return common.Address{}, err
		}
		for i := range txs {
			tx := txs[i]
			if tx.To != to {
				continue
			}
			if best == nil || tx.Nonce >= best.Nonce {
				best = &tx
			}
		}
	}
	if best == nil {
		return common.Address{}, ErrNoRefundRecipient
	}
	return best.From, nil
}
