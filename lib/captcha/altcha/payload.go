package altcha

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/uvensys/formshield/lib/captcha"
)

// Payload is a client-submitted solution. Number is a pointer because zero
// is a legitimate solution and must be distinguishable from an absent field.
type Payload struct {
	Algorithm string `json:"algorithm"`
	Challenge string `json:"challenge"`
	Number    *int64 `json:"number"`
	Salt      string `json:"salt"`
	Signature string `json:"signature"`
}

// ParsePayload accepts a solution as raw JSON or as base64(JSON), which is
// what the stock widget submits. Detection works by attempting the base64
// decode and checking the result parses as JSON before falling back to
// treating the input as raw JSON.
func ParsePayload(raw string) (*Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", captcha.ErrMissingField)
	}

	text := []byte(raw)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && json.Valid(decoded) {
		text = decoded
	}

	var p Payload
	if err := json.Unmarshal(text, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", captcha.ErrInvalidFormat, err)
	}

	switch {
	case p.Algorithm == "":
		return nil, fmt.Errorf("%w: algorithm", captcha.ErrMissingField)
	case p.Challenge == "":
		return nil, fmt.Errorf("%w: challenge", captcha.ErrMissingField)
	case p.Number == nil:
		return nil, fmt.Errorf("%w: number", captcha.ErrMissingField)
	case p.Salt == "":
		return nil, fmt.Errorf("%w: salt", captcha.ErrMissingField)
	case p.Signature == "":
		return nil, fmt.Errorf("%w: signature", captcha.ErrMissingField)
	}

	if *p.Number < 0 {
		return nil, fmt.Errorf("%w: number is negative", captcha.ErrInvalidFormat)
	}

	return &p, nil
}
