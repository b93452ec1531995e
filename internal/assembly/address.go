package assembly

import (
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

// AddressKind identifies the chain family of a ledger address.
type AddressKind int

const (
	AddressUnknown AddressKind = iota
	AddressEVM                 // 0x-prefixed 20-byte hex
	AddressHedera              // shard.realm.num account id
	AddressSolana              // base58 32-byte public key
)

// String returns the string representation of AddressKind.
func (k AddressKind) String() string {
	switch k {
	case AddressEVM:
		return "evm"
	case AddressHedera:
		return "hedera"
	case AddressSolana:
		return "solana"
	default:
		return "unknown"
	}
}

var (
	evmAddressRe    = regexp.MustCompile(`^0[xX][0-9a-fA-F]{40}$`)
	hederaAccountRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// solanaKeyLen is the decoded length of a Solana public key.
const solanaKeyLen = 32

// ClassifyAddress reports the address family of addr.
// Returns AddressUnknown and false when addr matches none.
func ClassifyAddress(addr string) (AddressKind, bool) {
	addr = strings.TrimSpace(addr)
	switch {
	case evmAddressRe.MatchString(addr):
		return AddressEVM, true
	case hederaAccountRe.MatchString(addr):
		return AddressHedera, true
	}

	// Solana keys are 32..44 base58 characters.
	if len(addr) < 32 || len(addr) > 44 {
		return AddressUnknown, false
	}
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != solanaKeyLen {
		return AddressUnknown, false
	}
	return AddressSolana, true
}
