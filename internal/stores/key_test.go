package stores

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func newTestKeyStore(t *testing.T) *LocalKeyStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keystore")
	ks, err := newLocalKeyStore("testpass", path, keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		t.Fatalf("newLocalKeyStore error: %v", err)
	}
	return ks
}

func TestCreateKeyAndHasKey(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	addrHex, err := ks.CreateKey(ctx)
	if err != nil {
		t.Fatalf("CreateKey error: %v", err)
	}
	if !ks.HasKey(ctx, addrHex) {
		t.Fatalf("HasKey(%s) = false, want true", addrHex)
	}
	if ks.HasKey(ctx, common.HexToAddress("0x000000000000000000000000000000000000dEaD").Hex()) {
		t.Fatal("HasKey returned true for unknown address")
	}
}

func TestDefaultAddress(t *testing.T) {
	ks := newTestKeyStore(t)
	if _, err := ks.DefaultAddress(); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("DefaultAddress on empty keystore = %v, want ErrNoWallet", err)
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	want, err := ks.ImportECDSA(priv)
	if err != nil {
		t.Fatalf("ImportECDSA error: %v", err)
	}
	if want != crypto.PubkeyToAddress(priv.PublicKey).Hex() {
		t.Fatalf("ImportECDSA address = %s", want)
	}

	got, err := ks.DefaultAddress()
	if err != nil {
		t.Fatalf("DefaultAddress error: %v", err)
	}
	if got != want {
		t.Fatalf("DefaultAddress = %s, want %s", got, want)
	}
}

func TestSignTx_ImportedWalletSignsRefund(t *testing.T) {
	ks := newTestKeyStore(t)
	ctx := context.Background()

	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	wallet, err := ks.ImportECDSA(priv)
	if err != nil {
		t.Fatalf("ImportECDSA error: %v", err)
	}

	// refund back to the sender of the last incoming transfer, ropsten chain id
	sender := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	chainID := big.NewInt(3)
	tx := types.NewTx(&types.LegacyTx{Nonce: 7, To: &sender, Value: big.NewInt(5e17), Gas: 21000, GasPrice: big.NewInt(2e9)})

	signed, err := ks.SignTx(ctx, wallet, tx, chainID)
	if err != nil {
		t.Fatalf("SignTx error: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if from.Hex() != wallet {
		t.Fatalf("signed by %s, want %s", from.Hex(), wallet)
	}
	if signed.Nonce() != 7 || *signed.To() != sender || signed.Value().Cmp(big.NewInt(5e17)) != 0 {
		t.Fatalf("signing changed the transfer: nonce=%d to=%s value=%s", signed.Nonce(), signed.To().Hex(), signed.Value())
	}
}

func TestSignTx_UnknownAddress(t *testing.T) {
	ks := newTestKeyStore(t)
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := types.NewTransaction(0, to, big.NewInt(0), 21000, big.NewInt(1), nil)

	if _, err := ks.SignTx(context.Background(), "0x000000000000000000000000000000000000dEaD", tx, big.NewInt(1)); err == nil {
		t.Fatal("expected error signing with unknown address, got nil")
	}
}
