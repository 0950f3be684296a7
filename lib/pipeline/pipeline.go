// Package pipeline orchestrates CAPTCHA verification for one form
// submission. It resolves the configured verifier per field, recovers every
// rejection into a reason code with a localized message, and arms the
// cleanup coordinator when the submission fails.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/uvensys/formshield"
	"github.com/uvensys/formshield/internal"
	"github.com/uvensys/formshield/lib/captcha"
	"github.com/uvensys/formshield/lib/captcha/altcha"
	"github.com/uvensys/formshield/lib/cleanup"
	"github.com/uvensys/formshield/lib/integration"
	"github.com/uvensys/formshield/lib/lead"
	"github.com/uvensys/formshield/lib/localization"
)

// FormField is one CAPTCHA field a form renderer should present. Only
// configured integrations produce a field; an unconfigured CAPTCHA is
// hidden, never failed.
type FormField struct {
	Key         string            `json:"key"`
	Integration string            `json:"integration"`
	SiteKey     string            `json:"site_key,omitempty"`
	Challenge   *altcha.Challenge `json:"challenge,omitempty"`
}

// FieldSubmission is the client's answer for one CAPTCHA field.
type FieldSubmission struct {
	Key             string
	Integration     string
	Token           string
	ScoreValidation bool
	MinScore        float64
}

// Submission is one form post.
type Submission struct {
	RemoteIP string
	Language string
	Fields   []FieldSubmission
}

// FieldResult is the verification verdict for one field. Message carries
// the localized text shown to the submitter; Reason stays in logs and
// metrics only.
type FieldResult struct {
	Key      string
	Accepted bool
	Reason   captcha.Reason
	Message  string
}

// Result is the verdict for the whole submission. Cleanup is non-nil iff
// the submission was rejected; the host lifecycle must then drive its
// LeadSaved and ResponseFinished hooks.
type Result struct {
	Accepted bool
	Fields   []FieldResult
	Cleanup  *cleanup.Coordinator
}

// Processor evaluates submissions against one integration configuration.
type Processor struct {
	Config *integration.Config
	Leads  *lead.Model
}

var failureMessageIDs = map[string]string{
	integration.Altcha:    "altcha_failure_message",
	integration.Recaptcha: "recaptcha_failure_message",
	integration.Hcaptcha:  "hcaptcha_failure_message",
	integration.Turnstile: "turnstile_failure_message",
}

func failureMessageID(name string) string {
	if id, ok := failureMessageIDs[name]; ok {
		return id
	}

	return "verification_failed"
}

// IssueChallenge mints a fresh proof-of-work challenge from the ALTCHA
// integration's configuration. Fails with captcha.ErrNotConfigured when the
// integration has no HMAC key.
func (p *Processor) IssueChallenge() (*altcha.Challenge, error) {
	ic := p.Config.Get(integration.Altcha)
	if ic == nil || !ic.Configured(integration.Altcha) {
		return nil, captcha.ErrNotConfigured
	}

	maxNumber := ic.MaxNumber
	if maxNumber == 0 {
		maxNumber = formshield.DefaultMaxNumber
	}

	ttl := time.Duration(ic.Expires) * time.Second
	if ttl == 0 {
		ttl = formshield.DefaultChallengeTTL
	}

	issuer := &altcha.Issuer{Key: []byte(ic.HMACKey)}

	ch, err := issuer.Issue(maxNumber, ttl)
	if err != nil {
		return nil, err
	}

	captcha.ChallengesIssued.WithLabelValues(ch.Algorithm).Inc()

	return ch, nil
}

// BuildFields returns the CAPTCHA fields a form should render, one per
// configured integration. The ALTCHA field carries a freshly issued
// challenge so the client can start working immediately.
func (p *Processor) BuildFields() ([]FormField, error) {
	var fields []FormField

	for _, name := range integration.Known {
		ic := p.Config.Get(name)
		if ic == nil || !ic.Configured(name) {
			continue
		}

		field := FormField{
			Key:         name,
			Integration: name,
			SiteKey:     ic.SiteKey,
		}

		if name == integration.Altcha {
			ch, err := p.IssueChallenge()
			if err != nil {
				return nil, err
			}
			field.Challenge = ch
		}

		fields = append(fields, field)
	}

	return fields, nil
}

// Process verifies every CAPTCHA field of one submission. Fields are
// evaluated independently; any single rejection rejects the whole
// submission. Provider outages reject too (fail closed) but keep their own
// reason code so outages never masquerade as bot traffic in metrics.
func (p *Processor) Process(ctx context.Context, lg *slog.Logger, sub *Submission) *Result {
	loc := localization.ForLanguage(sub.Language)
	result := &Result{Accepted: true}

	for _, fs := range sub.Fields {
		ic := p.Config.Get(fs.Integration)
		if ic == nil || !ic.Configured(fs.Integration) {
			lg.Debug("skipping field for unconfigured integration", "field", fs.Key, "integration", fs.Integration)
			continue
		}

		impl, ok := captcha.Get(fs.Integration)
		if !ok {
			lg.Warn("no verifier registered for integration", "field", fs.Key, "integration", fs.Integration)
			continue
		}

		out, err := impl.Verify(ctx, lg, &captcha.VerifyInput{
			Token:    fs.Token,
			RemoteIP: sub.RemoteIP,
			Field: &captcha.Field{
				Key:             fs.Key,
				ScoreValidation: fs.ScoreValidation || ic.ScoreValidation,
				MinScore:        fs.MinScore,
			},
			Integration: ic,
		})
		if err != nil {
			if !errors.Is(err, captcha.ErrNotConfigured) {
				captcha.ProviderErrors.WithLabelValues(fs.Integration).Inc()
			}

			lg.Error("verification errored, rejecting submission", "field", fs.Key, "integration", fs.Integration, "token_hash", internal.FastHash(fs.Token), "err", err)

			if out.Reason == "" {
				out = captcha.Reject(captcha.ReasonProviderError)
			}
		}

		captcha.Verifications.WithLabelValues(fs.Integration, string(out.Reason)).Inc()

		fr := FieldResult{
			Key:      fs.Key,
			Accepted: out.Accepted,
			Reason:   out.Reason,
		}

		if !out.Accepted {
			messageID := failureMessageID(fs.Integration)

			var cerr *captcha.Error
			if errors.As(err, &cerr) && cerr.PublicReason != "" {
				messageID = cerr.PublicReason
			}

			fr.Message = loc.T(messageID)
			result.Accepted = false
		}

		result.Fields = append(result.Fields, fr)
	}

	if !result.Accepted {
		result.Cleanup = cleanup.New(p.Leads, lg)
	}

	return result
}
