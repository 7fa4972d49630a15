package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/DalaiLlaama/card/internal/constants"
)

type Network string

const (
	Localhost Network = "LOCALHOST"
	Rinkeby   Network = "RINKEBY"
	Ropsten   Network = "ROPSTEN"
	Mainnet   Network = "MAINNET"
)

var ErrUnknownNetwork = errors.New("unrecognized network")

func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToUpper(strings.TrimSpace(s))); n {
	case Localhost, Rinkeby, Ropsten, Mainnet:
		return n, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
}

// path segment used by the default proxy urls
func (n Network) slug() string {
	if n == Localhost {
		return "local"
	}
	return strings.ToLower(string(n))
}

type Endpoints struct {
	RpcUrl string
	HubUrl string
}

// Resolves ledger and hub urls, preferring <NET>_ETH_URL and <NET>_HUB_URL overrides
func (n Network) Endpoints(publicUrl string, getenv func(string) string) Endpoints {
	e := Endpoints{
		RpcUrl: getenv(string(n) + "_ETH_URL"),
		HubUrl: getenv(string(n) + "_HUB_URL"),
	}
	if e.RpcUrl == "" {
		e.RpcUrl = fmt.Sprintf("%s/api/%s/eth", publicUrl, n.slug())
	}
	if e.HubUrl == "" {
		e.HubUrl = fmt.Sprintf("%s/api/%s/hub", publicUrl, n.slug())
	}
	return e
}

type Config struct {
	WalletAddress    string
	KeyStorePath     string
	KeyStorePassword string
	StorePath        string
	PublicUrl        string
	WsAddr           string
	ChannelClientUrl string
	LogLevel         string

	LowBalanceThreshold *big.Int

	DepositInterval   time.Duration
	SwapInterval      time.Duration
	StatusInterval    time.Duration
	CustodialInterval time.Duration
	IOTimeout         time.Duration
}

func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		WalletAddress:    getenv("WALLET_ADDRESS"),
		KeyStorePath:     withDefault(getenv("KEYSTORE_PATH"), constants.KeyStorePath),
		KeyStorePassword: getenv("KEYSTORE_PASSWORD"),
		StorePath:        withDefault(getenv("STORE_PATH"), constants.MarkerDbPath),
		PublicUrl:        withDefault(getenv("PUBLIC_URL"), constants.DefaultPublicUrl),
		WsAddr:           withDefault(getenv("WS_ADDR"), constants.DefaultWsAddr),
		ChannelClientUrl: getenv("CHANNEL_CLIENT_URL"),
		LogLevel:         withDefault(getenv("LOG_LEVEL"), "info"),
	}

	cfg.LowBalanceThreshold = new(big.Int).Set(constants.DefaultLowBalanceThreshold)
	if v := getenv("LOW_BALANCE_THRESHOLD"); v != "" {
		threshold, ok := new(big.Int).SetString(v, 10)
		if !ok || threshold.Sign() < 0 {
			return nil, fmt.Errorf("invalid LOW_BALANCE_THRESHOLD %q", v)
		}
		cfg.LowBalanceThreshold = threshold
	}

	durations := []struct {
		env string
		def time.Duration
		dst *time.Duration
	}{
		{"DEPOSIT_INTERVAL", constants.DefaultDepositInterval, &cfg.DepositInterval},
		{"SWAP_INTERVAL", constants.DefaultSwapInterval, &cfg.SwapInterval},
		{"STATUS_INTERVAL", constants.DefaultStatusInterval, &cfg.StatusInterval},
		{"CUSTODIAL_INTERVAL", constants.DefaultCustodialInterval, &cfg.CustodialInterval},
		{"IO_TIMEOUT", constants.DefaultIOTimeout, &cfg.IOTimeout},
	}
	for _, d := range durations {
		*d.dst = d.def
		v := getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid %s %q", d.env, v)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
