package domain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "op-atlas/pkg/domain-errors"
)

// GovernanceAddress is an EIP-55 checksummed Ethereum address.
// The zero value means "no address on file".
type GovernanceAddress string

// ParseGovernanceAddress validates a 0x-prefixed 40-hex-digit address and
// normalizes it to its EIP-55 checksummed form. Input casing is ignored.
func ParseGovernanceAddress(s string) (GovernanceAddress, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", dErrors.New(dErrors.CodeValidation, "address must start with 0x")
	}
	body := strings.ToLower(s[2:])
	if len(body) != 40 {
		return "", dErrors.New(dErrors.CodeValidation, "address must be 20 bytes")
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "address must be hexadecimal")
	}
	return GovernanceAddress("0x" + checksumHex(body)), nil
}

// checksumHex applies the EIP-55 mixed-case checksum to a lowercase hex body.
func checksumHex(body string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(body))
	digest := h.Sum(nil)

	out := []byte(body)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}

func (a GovernanceAddress) String() string { return string(a) }

func (a GovernanceAddress) IsZero() bool { return a == "" }

// EqualFold compares two addresses ignoring checksum casing. Address-based
// lookups are case-insensitive; only storage is checksummed.
func (a GovernanceAddress) EqualFold(other GovernanceAddress) bool {
	return strings.EqualFold(string(a), string(other))
}

// Lower returns the lowercase form used for case-insensitive indexes.
func (a GovernanceAddress) Lower() string { return strings.ToLower(string(a)) }
