// Copyright 2025 Traceprompt
//
// BLAKE3 digesting for the audit hash chain: a fixed-width digest,
// hex-encoded, computed over canonical bytes.
package hasher

import (
	"encoding/hex"

	"lukechampine.com/blake3"

	"github.com/traceprompt/audit-go/internal/canonical"
)

// nullLiteral is hashed in place of a missing/undefined value. This is
// legacy behavior retained for hash-compatibility with records produced
// before canonical.Marshal existed.
const nullLiteral = "null"

// HashCanonical canonicalizes v and returns the 64-character lowercase hex
// BLAKE3-256 digest of the resulting bytes. A nil v is treated as the
// legacy "null" literal rather than canonical.Marshal's "null" output —
// both happen to coincide today, but HashCanonical is the contract
// boundary callers should rely on.
func HashCanonical(v interface{}) (string, error) {
	if v == nil {
		return HashBytes([]byte(nullLiteral)), nil
	}
	b, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the 64-character lowercase hex BLAKE3-256 digest of b.
func HashBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
