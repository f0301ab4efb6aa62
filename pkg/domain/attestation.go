package domain

import (
	"encoding/hex"
	"strings"

	dErrors "op-atlas/pkg/domain-errors"
)

// AttestationID is the identifier returned by the attestation service:
// 0x followed by exactly 64 hex characters. Attestations are treated as
// irreversible once issued, so the format is validated strictly before
// anything is persisted against it.
type AttestationID string

// ParseAttestationID validates the strict 0x + 64-hex format.
func ParseAttestationID(s string) (AttestationID, error) {
	if !strings.HasPrefix(s, "0x") {
		return "", dErrors.New(dErrors.CodeValidation, "attestation id must start with 0x")
	}
	body := s[2:]
	if len(body) != 64 {
		return "", dErrors.New(dErrors.CodeValidation, "attestation id must be 32 bytes")
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "attestation id must be hexadecimal")
	}
	return AttestationID(s), nil
}

func (a AttestationID) String() string { return string(a) }

func (a AttestationID) IsZero() bool { return a == "" }
