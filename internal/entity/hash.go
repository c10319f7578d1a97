package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Domain prefixes for digests. The version suffix allows future algorithm migration.
const (
	DomainSnapshot = "schedstore/snapshot/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the domain-separated SHA-256 of v's JSON encoding.
// encoding/json emits struct fields in declaration order and map keys sorted, so equal
// values produce equal digests.
func Digest(domain string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "digest")
	}
	return hashWithDomain(domain, data), nil
}
