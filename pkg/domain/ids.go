// Package domain defines the typed identifiers shared across modules.
//
// Institution ids are sequential and allocated by the directory store;
// 0 is reserved and never refers to a real institution. Addresses and
// labels reuse the EVM wire shapes (20 and 32 bytes) since controllers
// and reporters are keyed by on-chain addresses.
package domain

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// InstitutionID identifies an institution. Ids start at 1 and are never
// reused, not even after deactivation.
type InstitutionID uint64

// IsZero reports whether the id is the reserved invalid id.
func (id InstitutionID) IsZero() bool { return id == 0 }

func (id InstitutionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseInstitutionID parses a decimal institution id. The zero id parses
// successfully; callers decide whether it is acceptable.
func ParseInstitutionID(s string) (InstitutionID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return InstitutionID(v), nil
}

// Address is a 20-byte account address (controller, reporter, fee sink).
type Address = common.Address

// Label is an opaque 32-byte tag or label hash.
type Label = common.Hash

// ZeroAddress is the null address; it is rejected everywhere an address
// is persisted.
var ZeroAddress = common.Address{}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (Address, bool) {
	if !common.IsHexAddress(s) {
		return Address{}, false
	}
	return common.HexToAddress(s), true
}

// ParseLabel parses a 0x-prefixed 32-byte hex label.
func ParseLabel(s string) (Label, bool) {
	if len(s) != 2+2*common.HashLength || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return Label{}, false
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return Label{}, false
		}
	}
	return common.HexToHash(s), true
}
