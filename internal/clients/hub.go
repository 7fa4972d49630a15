package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DalaiLlaama/card/internal/models"
	"github.com/DalaiLlaama/card/internal/utils/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog"
)

// Talks to the payment-channel client daemon over its local HTTP API
type HubBridge struct {
	api      *HttpClient
	interval time.Duration
	log      zerolog.Logger

	mu        sync.RWMutex
	opts      models.ChannelOptions
	listeners []func(models.ChannelSnapshot)

	// refreshes are numbered when their GET starts; responses older than the last
	// published one are dropped
	seq       atomic.Uint64
	pubMu     sync.Mutex
	published uint64
}

type wireChannel struct {
	BalanceTokenUser string `json:"balanceTokenUser"`
	BalanceWeiUser   string `json:"balanceWeiUser"`
	BalanceTokenHub  string `json:"balanceTokenHub"`
	BalanceWeiHub    string `json:"balanceWeiHub"`
}

type wireUpdate struct {
	Reason  models.SyncReason          `json:"reason"`
	TxCount uint64                     `json:"txCount"`
	Args    map[string]json.RawMessage `json:"args"`
}

type wireSyncResult struct {
	Type   string     `json:"type"`
	Update wireUpdate `json:"update"`
}

type wireRuntime struct {
	CanDeposit   bool `json:"canDeposit"`
	CanExchange  bool `json:"canExchange"`
	ExchangeRate *struct {
		Rates map[string]json.RawMessage `json:"rates"`
	} `json:"exchangeRate"`
	SyncResultsFromHub []wireSyncResult `json:"syncResultsFromHub"`
}

type wireOptions struct {
	TokenAddress    common.Address  `json:"tokenAddress"`
	ContractAddress common.Address  `json:"contractAddress"`
	HubAddress      common.Address  `json:"hubAddress"`
	EthNetworkID    json.RawMessage `json:"ethNetworkId"`
}

type wireState struct {
	Persistent struct {
		Channel *wireChannel `json:"channel"`
	} `json:"persistent"`
	Runtime *wireRuntime `json:"runtime"`
	Opts    *wireOptions `json:"opts"`
}

type buyRequest struct {
	Meta struct {
		PurchaseID string `json:"purchaseId"`
	} `json:"meta"`
	Payments []buyPayment `json:"payments"`
}

type buyPayment struct {
	Recipient string `json:"recipient"`
	Amount    struct {
		AmountToken string `json:"amountToken"`
		AmountWei   string `json:"amountWei"`
	} `json:"amount"`
	Type models.PaymentType `json:"type"`
}

func NewHubBridge(api *HttpClient, interval time.Duration, log zerolog.Logger) *HubBridge {
	return &HubBridge{
		api:      api,
		interval: interval,
		log:      log.With().Str("component", "hub").Logger(),
	}
}

// Loads the first state and channel options. Fails when the daemon is unreachable.
func (h *HubBridge) Start(ctx context.Context) error {
	if err := h.refresh(ctx); err != nil {
		return fmt.Errorf("initial channel state: %w", err)
	}
	return nil
}

// Polls the daemon for state until ctx is done
func (h *HubBridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.refresh(ctx); err != nil {
				h.log.Warn().Err(err).Msg("poll channel state")
			}
		}
	}
}

func (h *HubBridge) OnStateChange(fn func(models.ChannelSnapshot)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *HubBridge) Options() models.ChannelOptions {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opts
}

func (h *HubBridge) Deposit(ctx context.Context, deposit models.Deposit) error {
	payload := map[string]string{
		"amountWei":   deposit.AmountWei.String(),
		"amountToken": deposit.AmountToken.String(),
	}
	return h.call(ctx, "/deposit", payload)
}

func (h *HubBridge) Exchange(ctx context.Context, amount *big.Int, currency models.Currency) error {
	payload := map[string]string{
		"amount":   amount.String(),
		"currency": string(currency),
	}
	return h.call(ctx, "/exchange", payload)
}

func (h *HubBridge) Buy(ctx context.Context, payment models.PaymentRequest) error {
	var req buyRequest
	req.Meta.PurchaseID = payment.PurchaseID
	p := buyPayment{Recipient: payment.Recipient.Hex(), Type: payment.Type}
	p.Amount.AmountToken = payment.Amount.String()
	p.Amount.AmountWei = "0"
	req.Payments = []buyPayment{p}
	return h.call(ctx, "/buy", req)
}

// Posts a channel operation, then pulls the state it produced
func (h *HubBridge) call(ctx context.Context, path string, payload any) error {
	if _, err := h.api.Post(ctx, path, payload); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := h.refresh(ctx); err != nil {
		h.log.Warn().Err(err).Str("op", path).Msg("refresh state after channel operation")
	}
	return nil
}

func (h *HubBridge) refresh(ctx context.Context) error {
	n := h.seq.Add(1)
	body, err := h.api.Get(ctx, "/state")
	if err != nil {
		return err
	}
	var ws wireState
	if err := json.Unmarshal(body, &ws); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	snap, err := ws.snapshot()
	if err != nil {
		return err
	}

	h.pubMu.Lock()
	defer h.pubMu.Unlock()
	if n <= h.published {
		h.log.Debug().Uint64("seq", n).Uint64("published", h.published).Msg("dropping stale channel state")
		return nil
	}

	h.mu.Lock()
	if ws.Opts != nil {
		h.opts = models.ChannelOptions{
			TokenAddress:    ws.Opts.TokenAddress,
			ContractAddress: ws.Opts.ContractAddress,
			HubAddress:      ws.Opts.HubAddress,
		}
		if id := rawString(ws.Opts.EthNetworkID); id != "" {
			chainID, err := strconv.ParseUint(id, 10, 64)
			if err != nil {
				h.mu.Unlock()
				return fmt.Errorf("ethNetworkId %q: %w", id, err)
			}
			h.opts.EthNetworkID = chainID
		}
	}
	listeners := append([]func(models.ChannelSnapshot){}, h.listeners...)
	h.mu.Unlock()

	h.published = n
	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

func (ws *wireState) snapshot() (models.ChannelSnapshot, error) {
	var snap models.ChannelSnapshot
	if c := ws.Persistent.Channel; c != nil {
		ch := &models.ChannelState{}
		for _, f := range []struct {
			name string
			raw  string
			dst  **big.Int
		}{
			{"balanceTokenUser", c.BalanceTokenUser, &ch.BalanceTokenUser},
			{"balanceWeiUser", c.BalanceWeiUser, &ch.BalanceWeiUser},
			{"balanceTokenHub", c.BalanceTokenHub, &ch.BalanceTokenHub},
			{"balanceWeiHub", c.BalanceWeiHub, &ch.BalanceWeiHub},
		} {
			v, err := parseAmount(f.raw)
			if err != nil {
				return snap, fmt.Errorf("%s: %w", f.name, err)
			}
			*f.dst = v
		}
		snap.Channel = ch
	}

	if r := ws.Runtime; r != nil {
		rt := &models.RuntimeState{CanDeposit: r.CanDeposit, CanExchange: r.CanExchange}
		if r.ExchangeRate != nil {
			rate, err := units.ParseRate(rawString(r.ExchangeRate.Rates["USD"]))
			if err != nil {
				return snap, err
			}
			rt.ExchangeRate = rate
		}
		for _, s := range r.SyncResultsFromHub {
			args := make(map[string]string, len(s.Update.Args))
			for k, v := range s.Update.Args {
				args[k] = rawString(v)
			}
			rt.SyncResultsFromHub = append(rt.SyncResultsFromHub, models.SyncResult{
				Type: s.Type,
				Update: models.ChannelUpdate{
					Reason:  s.Update.Reason,
					TxCount: s.Update.TxCount,
					Args:    args,
				},
			})
		}
		snap.Runtime = rt
	}
	return snap, nil
}

// Empty amounts read as zero
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// Unquotes JSON strings and passes numbers and other literals through as text
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
