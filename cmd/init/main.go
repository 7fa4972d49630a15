package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/DalaiLlaama/card/internal/config"
	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/stores"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("error loading .env file: %v", err)
	}
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	keyStore, err := stores.NewLocalKeyStore(cfg.KeyStorePassword, cfg.KeyStorePath)
	if err != nil {
		log.Fatalf("failed to initialize key store: %v", err)
	}

	// import the wallet private key, or create a wallet when the keystore is empty
	if key := os.Getenv("WALLET_PRIVATE_KEY"); key != "" {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			log.Fatalf("failed to parse private key: %v", err)
		}
		addr, err := keyStore.ImportECDSA(privateKey)
		if err != nil {
			log.Fatalf("import failed: %v", err)
		}
		log.Printf("imported private key, address %s", addr)
	} else if addr, err := keyStore.DefaultAddress(); err == nil {
		log.Printf("using existing wallet %s", addr)
	} else if errors.Is(err, stores.ErrNoWallet) {
		addr, err := keyStore.CreateKey(context.Background())
		if err != nil {
			log.Fatalf("failed to create wallet: %v", err)
		}
		log.Printf("created wallet %s, fund it before starting the agent", addr)
	} else {
		log.Fatalf("failed to read keystore: %v", err)
	}

	// record the network selector
	selector := os.Getenv("NETWORK")
	if selector == "" {
		selector = constants.DefaultNetwork
	}
	network, err := config.ParseNetwork(selector)
	if err != nil {
		log.Fatalf("%v", err)
	}
	markers, err := stores.NewLocalMarkerStore(cfg.StorePath)
	if err != nil {
		log.Fatalf("failed to open marker store: %v", err)
	}
	defer markers.Close()
	if err := markers.Set(context.Background(), stores.KeyNetwork, string(network)); err != nil {
		log.Fatalf("failed to record network: %v", err)
	}
	log.Printf("network set to %s", network)
}
