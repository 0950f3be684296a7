// Package integration holds the per-provider configuration formshield reads
// once per process and never mutates: API keys, the proof-of-work HMAC key,
// score thresholds, and challenge difficulty. An integration with no keys is
// "not configured": its form field is omitted entirely, it is never failed.
package integration

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

// Names of the known integrations.
const (
	Altcha    = "altcha"
	Recaptcha = "recaptcha"
	Hcaptcha  = "hcaptcha"
	Turnstile = "turnstile"
)

var Known = []string{Altcha, Hcaptcha, Recaptcha, Turnstile}

var (
	ErrUnknownIntegration = errors.New("integration: unknown integration name")
	ErrKeyPairIncomplete  = errors.New("integration: site_key and secret_key must be set together")
	ErrBadMinScore        = errors.New("integration: min_score must be within [0, 1]")
	ErrBadVersion         = errors.New("integration: version must be v2 or v3")
)

// Integration is the key material and tuning for one provider. All fields
// are optional; which ones matter depends on the provider. It is loaded once
// and read-only afterwards.
type Integration struct {
	SiteKey   string `yaml:"site_key,omitempty" json:"site_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`

	// HMACKey signs self-hosted proof-of-work challenges. Only read by
	// the altcha integration.
	HMACKey string `yaml:"hmac_key,omitempty" json:"hmac_key,omitempty"`

	// ScoreValidation enables threshold checking for score-based
	// providers on every form, unless a field opts in on its own.
	ScoreValidation bool `yaml:"score_validation,omitempty" json:"score_validation,omitempty"`

	// MinScore is the exclusive score threshold for score-based
	// verification. A response scoring exactly MinScore is rejected.
	MinScore float64 `yaml:"min_score,omitempty" json:"min_score,omitempty"`

	// Version selects the reCAPTCHA widget generation, "v2" or "v3".
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// MaxNumber is the proof-of-work search space upper bound. Usability
	// bound, not a security one; clamped to [1000, 1000000] at issue time.
	MaxNumber int `yaml:"max_number,omitempty" json:"max_number,omitempty"`

	// Expires is the challenge lifetime in seconds, clamped to [10, 300].
	Expires int `yaml:"expires,omitempty" json:"expires,omitempty"`
}

// Configured reports whether the named integration has the key material it
// needs to verify anything. Gating on this happens in the pipeline, before
// a verifier is ever invoked.
func (i *Integration) Configured(name string) bool {
	if i == nil {
		return false
	}

	switch name {
	case Altcha:
		return i.HMACKey != ""
	default:
		return i.SiteKey != "" && i.SecretKey != ""
	}
}

func (i *Integration) valid(name string) error {
	var errs []error

	if !slices.Contains(Known, name) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownIntegration, name))
	}

	if (i.SiteKey == "") != (i.SecretKey == "") {
		errs = append(errs, fmt.Errorf("%w (integration %q)", ErrKeyPairIncomplete, name))
	}

	if i.MinScore < 0 || i.MinScore > 1 {
		errs = append(errs, fmt.Errorf("%w: got %v (integration %q)", ErrBadMinScore, i.MinScore, name))
	}

	if name == Recaptcha && i.Version != "" && i.Version != "v2" && i.Version != "v3" {
		errs = append(errs, fmt.Errorf("%w: got %q", ErrBadVersion, i.Version))
	}

	return errors.Join(errs...)
}

// Config is the whole integrations document.
type Config struct {
	Integrations map[string]Integration `yaml:"integrations"`
}

// Get returns the named integration or nil when the document does not
// mention it. A nil Integration is never Configured.
func (c *Config) Get(name string) *Integration {
	if c == nil {
		return nil
	}

	result, ok := c.Integrations[name]
	if !ok {
		return nil
	}

	return &result
}

// Valid checks every integration in the document, accumulating all errors so
// an admin fixes a broken config in one pass.
func (c *Config) Valid() error {
	var errs []error

	for name, in := range c.Integrations {
		if err := in.valid(name); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Load parses an integrations document from fin.
func Load(fin io.Reader, fname string) (*Config, error) {
	var config Config

	dec := yaml.NewDecoder(fin)
	dec.KnownFields(true)

	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("can't parse integrations file %s: %w", fname, err)
	}

	if err := config.Valid(); err != nil {
		return nil, fmt.Errorf("can't validate integrations file %s: %w", fname, err)
	}

	return &config, nil
}
