package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/DalaiLlaama/card/internal/models"

	bolt "go.etcd.io/bbolt"
)

const (
	KeyNetwork               = "rpc-prod"
	KeyRefunding             = "refunding"
	KeyMaxBalanceAfterRefund = "maxBalanceAfterRefund"
)

var (
	bucketWallet = []byte("wallet")

	ErrKeyNotFound      = errors.New("key not found")
	ErrRefundInFlight   = errors.New("refund already in flight")
	ErrNoRefundInFlight = errors.New("no refund in flight")
	ErrCorruptMarker    = errors.New("corrupt refund marker")
)

type MarkerStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error

	// Returns the in-flight refund marker, or nil when none exists
	RefundMarker(ctx context.Context) (*models.RefundMarker, error)
	// Creates the refund marker unless one already exists, in a single transaction
	BeginRefund(ctx context.Context, marker *models.RefundMarker) error
	// Overwrites an existing marker, including ExpectedMaxBalance when set
	UpdateRefund(ctx context.Context, marker *models.RefundMarker) error
	ClearRefund(ctx context.Context) error
}

type LocalMarkerStore struct {
	db *bolt.DB
}

func NewLocalMarkerStore(path string) (*LocalMarkerStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(bucketWallet); e != nil {
			return e
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LocalMarkerStore{db: db}, nil
}

func (s *LocalMarkerStore) Get(ctx context.Context, key string) (string, error) {
	var out string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketWallet).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		out = string(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (s *LocalMarkerStore) Set(ctx context.Context, key string, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWallet).Put([]byte(key), []byte(value))
	})
}

func (s *LocalMarkerStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWallet).Delete([]byte(key))
	})
}

func (s *LocalMarkerStore) RefundMarker(ctx context.Context) (*models.RefundMarker, error) {
	var out *models.RefundMarker
	err := s.db.View(func(tx *bolt.Tx) error {
		m, err := readMarker(tx.Bucket(bucketWallet))
		out = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LocalMarkerStore) BeginRefund(ctx context.Context, marker *models.RefundMarker) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWallet)
		if b.Get([]byte(KeyRefunding)) != nil || b.Get([]byte(KeyMaxBalanceAfterRefund)) != nil {
			return ErrRefundInFlight
		}
		return writeMarker(b, marker)
	})
}

func (s *LocalMarkerStore) UpdateRefund(ctx context.Context, marker *models.RefundMarker) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWallet)
		if b.Get([]byte(KeyRefunding)) == nil && b.Get([]byte(KeyMaxBalanceAfterRefund)) == nil {
			return ErrNoRefundInFlight
		}
		return writeMarker(b, marker)
	})
}

func (s *LocalMarkerStore) ClearRefund(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWallet)
		if err := b.Delete([]byte(KeyRefunding)); err != nil {
			return err
		}
		return b.Delete([]byte(KeyMaxBalanceAfterRefund))
	})
}

func (s *LocalMarkerStore) Close() error {
	return s.db.Close()
}

func writeMarker(b *bolt.Bucket, marker *models.RefundMarker) error {
	blob, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(KeyRefunding), blob); err != nil {
		return err
	}
	if marker.ExpectedMaxBalance == nil {
		return b.Delete([]byte(KeyMaxBalanceAfterRefund))
	}
	return b.Put([]byte(KeyMaxBalanceAfterRefund), []byte(marker.ExpectedMaxBalance.String()))
}

// Either key alone means a refund is in flight. Values that are not JSON
// (older "amount,recipient" markers) still count as an in-flight refund.
func readMarker(b *bolt.Bucket) (*models.RefundMarker, error) {
	raw := b.Get([]byte(KeyRefunding))
	maxRaw := b.Get([]byte(KeyMaxBalanceAfterRefund))
	if raw == nil && maxRaw == nil {
		return nil, nil
	}

	m := &models.RefundMarker{}
	if raw != nil {
		if err := json.Unmarshal(raw, m); err != nil {
			m = &models.RefundMarker{}
		}
	}
	m.InFlight = true

	if maxRaw != nil {
		max, ok := new(big.Int).SetString(string(maxRaw), 10)
		if !ok {
			return nil, fmt.Errorf("%w: %s value %q", ErrCorruptMarker, KeyMaxBalanceAfterRefund, maxRaw)
		}
		m.ExpectedMaxBalance = max
	}
	return m, nil
}
