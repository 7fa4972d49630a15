package address

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Validates address and returns checksummed EVM address
// Checksumming is used to normalize addresses for storage and for comparing tx recipients
func Checksummed(addressStr string) (string, error) {
	addr, err := Parse(addressStr)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// Validates address and returns it parsed
func Parse(addressStr string) (common.Address, error) {
	if !common.IsHexAddress(addressStr) {
		return common.Address{}, fmt.Errorf("invalid address: %s", addressStr)
	}
	return common.HexToAddress(addressStr), nil
}
