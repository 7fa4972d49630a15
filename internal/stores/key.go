package stores

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrNoWallet = errors.New("keystore holds no wallet")

type KeyStore interface {
	HasKey(ctx context.Context, address string) bool
	SignTx(ctx context.Context, address string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Encrypted wallet keys on disk, all sealed with one passphrase
type LocalKeyStore struct {
	ks         *keystore.KeyStore
	rootDir    string
	passphrase string
}

func NewLocalKeyStore(passphrase string, rootDir string) (*LocalKeyStore, error) {
	return newLocalKeyStore(passphrase, rootDir, keystore.StandardScryptN, keystore.StandardScryptP)
}

func newLocalKeyStore(passphrase string, rootDir string, scryptN, scryptP int) (*LocalKeyStore, error) {
	if err := os.MkdirAll(rootDir, 0700); err != nil {
		return nil, err
	}
	ks := keystore.NewKeyStore(rootDir, scryptN, scryptP)
	return &LocalKeyStore{ks: ks, passphrase: passphrase, rootDir: rootDir}, nil
}

func (l *LocalKeyStore) CreateKey(ctx context.Context) (address string, err error) {
	account, err := l.ks.NewAccount(l.passphrase)
	if err != nil {
		return "", err
	}
	return account.Address.Hex(), nil
}

func (l *LocalKeyStore) ImportECDSA(privKey *ecdsa.PrivateKey) (string, error) {
	acct, err := l.ks.ImportECDSA(privKey, l.passphrase)
	if err != nil {
		return "", err
	}
	return acct.Address.Hex(), nil
}

// Returns the first wallet in the keystore, used when no address is configured
func (l *LocalKeyStore) DefaultAddress() (string, error) {
	accts := l.ks.Accounts()
	if len(accts) == 0 {
		return "", ErrNoWallet
	}
	return accts[0].Address.Hex(), nil
}

func (l *LocalKeyStore) HasKey(ctx context.Context, address string) bool {
	return l.ks.HasAddress(common.HexToAddress(address))
}

func (l *LocalKeyStore) SignTx(ctx context.Context, address string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	account, err := l.get(address)
	if err != nil {
		return nil, err
	}
	return l.ks.SignTxWithPassphrase(account, l.passphrase, tx, chainID)
}

func (l *LocalKeyStore) get(address string) (accounts.Account, error) {
	if !l.ks.HasAddress(common.HexToAddress(address)) {
		return accounts.Account{}, fmt.Errorf("address not found: %s", address)
	}
	return l.ks.Find(accounts.Account{Address: common.HexToAddress(address)})
}
