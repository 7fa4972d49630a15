package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/DalaiLlaama/card/internal/mocks"
	"github.com/DalaiLlaama/card/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const testRecipient = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

type paymentFixture struct {
	channel    *mocks.MockChannelClient
	state      *ChannelStateStore
	controller *AutopayController
	history    *History
	exec       *PaymentExecutor
}

// channel balance and threshold in whole tokens
func newPaymentFixture(balance, threshold int64) *paymentFixture {
	f := &paymentFixture{
		channel: &mocks.MockChannelClient{},
		state:   storeWith(channelSnapshot(ether(balance), big.NewInt(0), nil)),
		history: NewHistory(20),
	}
	f.controller = NewAutopayController(f.state, ether(threshold), zerolog.Nop())
	f.exec = NewPaymentExecutor(f.channel, f.state, f.controller, f.history, zerolog.Nop())

	// the hub pushes the post-payment balance before Buy returns
	f.channel.BuyFn = func(ctx context.Context, p models.PaymentRequest) error {
		left := new(big.Int).Sub(f.state.TokenBalance(), p.Amount)
		f.state.Update(channelSnapshot(left, big.NewInt(0), nil))
		return nil
	}
	return f
}

func TestPaymentExecutor_LowBalancePauses(t *testing.T) {
	f := newPaymentFixture(1000, 100)
	n := &recordingNotifier{}
	f.controller.SetNotifier(n)
	f.controller.Start()

	if err := f.exec.SendPayment(context.Background(), testRecipient, "950"); err != nil {
		t.Fatalf("SendPayment: %v", err)
	}
	if len(f.channel.Payments) != 1 || f.channel.Payments[0].Amount.Cmp(ether(950)) != 0 {
		t.Fatalf("payments = %+v", f.channel.Payments)
	}
	if f.controller.State() != models.AutopayPaused {
		t.Fatalf("state = %s, want paused", f.controller.State())
	}
	if len(n.events) != 1 || n.events[0] != EventPausing {
		t.Fatalf("events = %v", n.events)
	}
	entries := f.history.Entries()
	if len(entries) != 1 || entries[0].Text != "Payment of 950 to "+common.HexToAddress(testRecipient).Hex()+". Type: PT_CHANNEL" {
		t.Fatalf("history = %v", entries)
	}
}

func TestPaymentExecutor_HealthyBalanceStaysRunning(t *testing.T) {
	f := newPaymentFixture(1000, 100)
	f.controller.Start()

	if err := f.exec.SendPayment(context.Background(), testRecipient, "1.5"); err != nil {
		t.Fatalf("SendPayment: %v", err)
	}
	if f.controller.State() != models.AutopayRunning {
		t.Fatalf("state = %s, want running", f.controller.State())
	}
}

func TestPaymentExecutor_RejectedUnlessRunning(t *testing.T) {
	f := newPaymentFixture(1000, 100)

	if err := f.exec.SendPayment(context.Background(), testRecipient, "1"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("stopped: expected ErrNotRunning, got %v", err)
	}
	f.controller.Start()
	f.controller.ForcePause()
	if err := f.exec.SendPayment(context.Background(), testRecipient, "1"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("paused: expected ErrNotRunning, got %v", err)
	}
	if len(f.channel.Payments) != 0 {
		t.Fatal("no payment may be sent unless running")
	}
}

func TestPaymentExecutor_InsufficientBalance(t *testing.T) {
	f := newPaymentFixture(10, 1)
	f.controller.Start()

	if err := f.exec.SendPayment(context.Background(), testRecipient, "10.000000000000000001"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(f.channel.Payments) != 0 || f.history.Len() != 0 {
		t.Fatal("no partial effect expected")
	}
}

func TestPaymentExecutor_InvalidRequest(t *testing.T) {
	f := newPaymentFixture(10, 1)
	f.controller.Start()

	if err := f.exec.SendPayment(context.Background(), "not-an-address", "1"); err == nil {
		t.Fatal("expected address error")
	}
	if err := f.exec.SendPayment(context.Background(), testRecipient, "0"); err == nil {
		t.Fatal("expected amount error")
	}
}

func TestPaymentExecutor_BuyFailureSwallowed(t *testing.T) {
	f := newPaymentFixture(10, 1)
	f.controller.Start()
	f.channel.BuyFn = func(ctx context.Context, p models.PaymentRequest) error { return errors.New("hub rejected update") }

	if err := f.exec.SendPayment(context.Background(), testRecipient, "1"); err != nil {
		t.Fatalf("SendPayment: %v", err)
	}
	if f.history.Len() != 0 {
		t.Fatal("failed payment must not be recorded")
	}
	if f.controller.State() != models.AutopayRunning {
		t.Fatal("failure must not change state")
	}
}
