package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix leaves room for an
// algorithm change without colliding with old digests.
const (
	DomainRecord = "lifeline/record/v1"
	DomainSeal   = "lifeline/seal/v1"
)

// HashWithDomain computes SHA256(domain || 0x00 || data) as lowercase hex.
// The null separator keeps domain and data from running together.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint marshals v canonically and hashes it under domain.
func Fingerprint(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return HashWithDomain(domain, data), nil
}
