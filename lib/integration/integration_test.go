package integration

import (
	"errors"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	const doc = `
integrations:
  altcha:
    hmac_key: hunter2
    max_number: 50000
    expires: 120
  recaptcha:
    site_key: sk
    secret_key: sec
    version: v3
    min_score: 0.5
  turnstile:
    site_key: sk
    secret_key: sec
`

	config, err := Load(strings.NewReader(doc), "test.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if in := config.Get(Altcha); !in.Configured(Altcha) {
		t.Error("wanted altcha to be configured")
	}

	if in := config.Get(Recaptcha); !in.Configured(Recaptcha) {
		t.Error("wanted recaptcha to be configured")
	}

	if in := config.Get(Hcaptcha); in.Configured(Hcaptcha) {
		t.Error("hcaptcha is absent from the document but reports configured")
	}

	if got := config.Get(Recaptcha).MinScore; got != 0.5 {
		t.Errorf("wanted min_score 0.5, got: %v", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	const doc = `
integrations:
  altcha:
    hmca_key: oops
`

	if _, err := Load(strings.NewReader(doc), "test.yaml"); err == nil {
		t.Error("wanted a typo'd key to fail parsing but it did not")
	}
}

func TestValid(t *testing.T) {
	for _, tt := range []struct {
		name   string
		config Config
		err    error
	}{
		{
			name: "unknown integration",
			config: Config{Integrations: map[string]Integration{
				"fancaptcha": {},
			}},
			err: ErrUnknownIntegration,
		},
		{
			name: "half a key pair",
			config: Config{Integrations: map[string]Integration{
				Turnstile: {SiteKey: "sk"},
			}},
			err: ErrKeyPairIncomplete,
		},
		{
			name: "min score out of range",
			config: Config{Integrations: map[string]Integration{
				Recaptcha: {SiteKey: "sk", SecretKey: "sec", MinScore: 1.5},
			}},
			err: ErrBadMinScore,
		},
		{
			name: "bad recaptcha version",
			config: Config{Integrations: map[string]Integration{
				Recaptcha: {SiteKey: "sk", SecretKey: "sec", Version: "v9"},
			}},
			err: ErrBadVersion,
		},
		{
			name: "empty document",
			config: Config{},
			err:  nil,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Valid(); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
