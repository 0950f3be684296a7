package internal

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hasher returns a constructor for the named hash algorithm as it appears on
// the challenge wire format ("SHA-256", "SHA-384" or "SHA-512").
func Hasher(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "SHA-256":
		return sha256.New, nil
	case "SHA-384":
		return sha512.New384, nil
	case "SHA-512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

// SHA256sum computes a cryptographic hash. Used for proof-of-work challenges
// where we need the security properties of a cryptographic hash function.
func SHA256sum(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// FastHash is a high-performance non-cryptographic hash function suitable
// for log correlation IDs and other cases where cryptographic security is
// not required. Never use this for anything the client can forge.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}
