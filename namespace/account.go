package namespace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAccount = errors.New("invalid account")

// Account is a CAIP-10 account id: namespace:reference:address.
type Account struct {
	Namespace string `json:"namespace"`
	Reference string `json:"reference"`
	Address   string `json:"address"`
}

// ParseAccount splits raw into its three parts. eip155 addresses are checked
// and rewritten in checksum form so the same account always compares equal.
func ParseAccount(raw string) (Account, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, raw)
	}
	for _, p := range parts {
		if p == "" {
			return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, raw)
		}
	}

	acc := Account{Namespace: parts[0], Reference: parts[1], Address: parts[2]}
	if acc.Namespace == "eip155" {
		if !common.IsHexAddress(acc.Address) {
			return Account{}, fmt.Errorf("%w: bad eip155 address %q", ErrInvalidAccount, acc.Address)
		}
		acc.Address = common.HexToAddress(acc.Address).Hex()
	}
	return acc, nil
}

// ChainID returns the namespace:reference part.
func (a Account) ChainID() string {
	return a.Namespace + ":" + a.Reference
}

func (a Account) String() string {
	return a.Namespace + ":" + a.Reference + ":" + a.Address
}
