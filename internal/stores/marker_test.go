package stores

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DalaiLlaama/card/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

func newTestMarkerStore(t *testing.T) *LocalMarkerStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalMarkerStore(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("NewLocalMarkerStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMarker() *models.RefundMarker {
	return &models.RefundMarker{
		InFlight:        true,
		Amount:          big.NewInt(100),
		Recipient:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		OriginalBalance: big.NewInt(1000),
	}
}

func TestMarkerStore_SetGetDelete(t *testing.T) {
	store := newTestMarkerStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyNetwork, "ROPSTEN"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err := store.Get(ctx, KeyNetwork)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != "ROPSTEN" {
		t.Fatalf("Get = %q, want ROPSTEN", got)
	}

	if err := store.Delete(ctx, KeyNetwork); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Get(ctx, KeyNetwork); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestMarkerStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	s1, err := NewLocalMarkerStore(path)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	m := testMarker()
	m.ExpectedMaxBalance = big.NewInt(900)
	if err := s1.BeginRefund(ctx, m); err != nil {
		t.Fatalf("BeginRefund error: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s2, err := NewLocalMarkerStore(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()

	got, err := s2.RefundMarker(ctx)
	if err != nil {
		t.Fatalf("RefundMarker error: %v", err)
	}
	if got == nil || !got.InFlight || got.ExpectedMaxBalance.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("RefundMarker = %+v, want in-flight with max 900", got)
	}
	if got.Recipient != m.Recipient {
		t.Fatalf("Recipient = %s, want %s", got.Recipient.Hex(), m.Recipient.Hex())
	}
}

func TestMarkerStore_RefundMarker_Absent(t *testing.T) {
	store := newTestMarkerStore(t)
	got, err := store.RefundMarker(context.Background())
	if err != nil {
		t.Fatalf("RefundMarker error: %v", err)
	}
	if got != nil {
		t.Fatalf("RefundMarker = %+v, want nil", got)
	}
}

func TestMarkerStore_BeginRefund_Exclusive(t *testing.T) {
	store := newTestMarkerStore(t)
	ctx := context.Background()

	if err := store.BeginRefund(ctx, testMarker()); err != nil {
		t.Fatalf("BeginRefund(1) error: %v", err)
	}
	if err := store.BeginRefund(ctx, testMarker()); !errors.Is(err, ErrRefundInFlight) {
		t.Fatalf("BeginRefund(2) = %v, want ErrRefundInFlight", err)
	}
}

func TestMarkerStore_BeginRefund_Concurrent(t *testing.T) {
	store := newTestMarkerStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.BeginRefund(ctx, testMarker())
		}()
	}
	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrRefundInFlight):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("%d goroutines created a marker, want exactly 1", won)
	}
}

func TestMarkerStore_UpdateAndClear(t *testing.T) {
	store := newTestMarkerStore(t)
	ctx := context.Background()

	m := testMarker()
	if err := store.UpdateRefund(ctx, m); !errors.Is(err, ErrNoRefundInFlight) {
		t.Fatalf("UpdateRefund without marker = %v, want ErrNoRefundInFlight", err)
	}
	if err := store.BeginRefund(ctx, m); err != nil {
		t.Fatalf("BeginRefund error: %v", err)
	}

	m.TxHash = "0xabc"
	m.ExpectedMaxBalance = big.NewInt(900)
	if err := store.UpdateRefund(ctx, m); err != nil {
		t.Fatalf("UpdateRefund error: %v", err)
	}
	raw, err := store.Get(ctx, KeyMaxBalanceAfterRefund)
	if err != nil || raw != "900" {
		t.Fatalf("maxBalanceAfterRefund = %q, %v; want 900", raw, err)
	}

	if err := store.ClearRefund(ctx); err != nil {
		t.Fatalf("ClearRefund error: %v", err)
	}
	got, err := store.RefundMarker(ctx)
	if err != nil || got != nil {
		t.Fatalf("RefundMarker after clear = %+v, %v", got, err)
	}
	if err := store.BeginRefund(ctx, testMarker()); err != nil {
		t.Fatalf("BeginRefund after clear error: %v", err)
	}
}

func TestMarkerStore_LegacyValues(t *testing.T) {
	store := newTestMarkerStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyRefunding, "10,0x2222222222222222222222222222222222222222"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err := store.RefundMarker(ctx)
	if err != nil {
		t.Fatalf("RefundMarker error: %v", err)
	}
	if got == nil || !got.InFlight || got.Broadcast() {
		t.Fatalf("RefundMarker = %+v, want in-flight, not broadcast", got)
	}

	if err := store.ClearRefund(ctx); err != nil {
		t.Fatalf("ClearRefund error: %v", err)
	}
	if err := store.Set(ctx, KeyMaxBalanceAfterRefund, "500"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err = store.RefundMarker(ctx)
	if err != nil {
		t.Fatalf("RefundMarker error: %v", err)
	}
	if !got.Broadcast() || got.ExpectedMaxBalance.Int64() != 500 {
		t.Fatalf("RefundMarker = %+v, want broadcast with max 500", got)
	}
}

func TestMarkerStore_CorruptMaxBalance(t *testing.T) {
	store := newTestMarkerStore(t)
	ctx := context.Background()
	if err := store.Set(ctx, KeyMaxBalanceAfterRefund, "lots"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, err := store.RefundMarker(ctx); !errors.Is(err, ErrCorruptMarker) {
		t.Fatalf("RefundMarker = %v, want ErrCorruptMarker", err)
	}
}
