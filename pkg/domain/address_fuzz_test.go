//go:build go1.18

package domain

import (
	"strings"
	"testing"
)

// FuzzParseGovernanceAddress checks the address parser never panics and that
// every accepted input normalizes to a stable checksummed form.
func FuzzParseGovernanceAddress(f *testing.F) {
	f.Add("")
	f.Add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	f.Add("0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED")
	f.Add("0x0000000000000000000000000000000000000000")
	f.Add("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beae")
	f.Add("0xZZeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	f.Add("'; DROP TABLE citizens;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		addr, err := ParseGovernanceAddress(input)
		if err != nil {
			return
		}

		// Accepted addresses are canonical: re-parsing is the identity, in
		// any casing.
		again, err2 := ParseGovernanceAddress(addr.String())
		if err2 != nil {
			t.Errorf("canonical form failed re-parse: %v", err2)
		}
		if again != addr {
			t.Error("re-parse changed the canonical form")
		}
		upper, err3 := ParseGovernanceAddress("0x" + strings.ToUpper(addr.String()[2:]))
		if err3 != nil || upper != addr {
			t.Error("checksum normalization is casing-sensitive")
		}

		if !addr.EqualFold(GovernanceAddress(input)) {
			t.Error("parsed address does not fold-match its input")
		}
	})
}
