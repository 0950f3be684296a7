// Package altcha implements the self-hosted proof-of-work challenge: issuing
// HMAC-signed challenges and verifying client-submitted solutions without
// any server-side state.
//
// The client receives {algorithm, challenge, salt, maxnumber, signature} and
// brute-forces the number in [0, maxnumber] whose hash together with the
// salt reproduces the challenge. Verification is stateless: the expiry
// travels inside the salt as "<hex>?expires=<unixSeconds>" and the signature
// covers "<challenge>:<unixSeconds>", so nothing the client can alter goes
// unchecked.
package altcha

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/uvensys/formshield/internal"
	"github.com/uvensys/formshield/lib/captcha"
	"github.com/uvensys/formshield/lib/integration"
)

func init() {
	captcha.Register(integration.Altcha, &Impl{})
}

// Challenge wire-format bounds. These are usability clamps, not security
// ones: a challenge outside them is merely annoying or trivial, never
// forgeable.
const (
	MinMaxNumber = 1000
	MaxMaxNumber = 1000000

	MinTTL = 10 * time.Second
	MaxTTL = 300 * time.Second

	saltLength = 12 // random bytes before hex encoding

	expiresParam = "?expires="
)

// DefaultAlgorithm is used when the integration does not pick one.
const DefaultAlgorithm = "SHA-256"

// Challenge is one issued proof-of-work puzzle. Immutable once issued; it
// has no identity beyond its fields and is never stored server-side.
type Challenge struct {
	Algorithm string `json:"algorithm"`
	Challenge string `json:"challenge"`
	MaxNumber int    `json:"maxnumber"`
	Salt      string `json:"salt"`
	Signature string `json:"signature"`
}

// ExpiresAt extracts the expiry encoded into the salt.
func (c *Challenge) ExpiresAt() (time.Time, error) {
	return expiresFromSalt(c.Salt)
}

func expiresFromSalt(salt string) (time.Time, error) {
	_, rest, ok := strings.Cut(salt, expiresParam)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: salt has no expiry", captcha.ErrInvalidFormat)
	}

	unix, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: salt expiry: %w", captcha.ErrInvalidFormat, err)
	}

	return time.Unix(unix, 0).UTC(), nil
}

// signedMaterial is the canonical byte layout submitted to HMAC-SHA256:
// the challenge hash, a colon, and the expiry as unix seconds.
func signedMaterial(challengeHash string, expires time.Time) string {
	return challengeHash + ":" + strconv.FormatInt(expires.Unix(), 10)
}

func sign(key []byte, challengeHash string, expires time.Time) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(signedMaterial(challengeHash, expires)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issuer mints challenges for one integration's HMAC key.
type Issuer struct {
	// Algorithm is SHA-256, SHA-384 or SHA-512. Empty means DefaultAlgorithm.
	Algorithm string

	// Key is the HMAC signing key. An Issuer without a key is "feature
	// disabled": Issue fails with captcha.ErrNotConfigured.
	Key []byte
}

// Issue generates a fresh challenge. maxNumber and ttl are clamped into
// [MinMaxNumber, MaxMaxNumber] and [MinTTL, MaxTTL]. The secret number is
// drawn from crypto/rand and discarded: finding it again is the client's
// proof-of-work cost. Issue performs no I/O and leaves no state behind.
func (i *Issuer) Issue(maxNumber int, ttl time.Duration) (*Challenge, error) {
	if len(i.Key) == 0 {
		return nil, captcha.ErrNotConfigured
	}

	algorithm := i.Algorithm
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	hasher, err := internal.Hasher(algorithm)
	if err != nil {
		return nil, err
	}

	maxNumber = min(max(maxNumber, MinMaxNumber), MaxMaxNumber)
	ttl = min(max(ttl, MinTTL), MaxTTL)

	saltBytes := make([]byte, saltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return nil, fmt.Errorf("can't read random salt: %w", err)
	}

	expires := time.Now().Add(ttl).UTC()
	salt := hex.EncodeToString(saltBytes) + expiresParam + strconv.FormatInt(expires.Unix(), 10)

	secret, err := rand.Int(rand.Reader, big.NewInt(int64(maxNumber)+1))
	if err != nil {
		return nil, fmt.Errorf("can't draw secret number: %w", err)
	}

	h := hasher()
	h.Write([]byte(salt + secret.String()))
	challengeHash := hex.EncodeToString(h.Sum(nil))

	return &Challenge{
		Algorithm: algorithm,
		Challenge: challengeHash,
		MaxNumber: maxNumber,
		Salt:      salt,
		Signature: sign(i.Key, challengeHash, expires),
	}, nil
}

// Verify checks a solution payload against the HMAC key. It is pure: no
// I/O, no logging, and in particular no secret material in any returned
// value. All failure modes are recovered into a rejected Outcome.
//
// The checks run in a fixed order, each short-circuiting: payload shape,
// signature (constant time), expiry, then the hash itself. The signature is
// checked before the expiry so a forged expiry never matters.
func Verify(payload string, key []byte, now time.Time) captcha.Outcome {
	p, err := ParsePayload(payload)
	if err != nil {
		return captcha.Reject(captcha.ReasonMalformed)
	}

	expires, err := expiresFromSalt(p.Salt)
	if err != nil {
		return captcha.Reject(captcha.ReasonMalformed)
	}

	expected := sign(key, p.Challenge, expires)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(p.Signature)) != 1 {
		return captcha.Reject(captcha.ReasonBadSignature)
	}

	if now.After(expires) {
		return captcha.Reject(captcha.ReasonExpired)
	}

	hasher, err := internal.Hasher(p.Algorithm)
	if err != nil {
		return captcha.Reject(captcha.ReasonMalformed)
	}

	h := hasher()
	h.Write([]byte(p.Salt + strconv.FormatInt(*p.Number, 10)))
	calculated := hex.EncodeToString(h.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(calculated), []byte(p.Challenge)) != 1 {
		return captcha.Reject(captcha.ReasonBadNumber)
	}

	return captcha.Accept()
}

// Impl adapts the challenge engine to the pipeline's verifier capability.
type Impl struct{}

func (i *Impl) Verify(ctx context.Context, lg *slog.Logger, in *captcha.VerifyInput) (captcha.Outcome, error) {
	if !in.Integration.Configured(integration.Altcha) {
		return captcha.Reject(captcha.ReasonNotConfigured), captcha.ErrNotConfigured
	}

	out := Verify(in.Token, []byte(in.Integration.HMACKey), time.Now())
	if !out.Accepted {
		lg.Debug("proof-of-work solution rejected", "reason", out.Reason)
	}

	return out, nil
}
