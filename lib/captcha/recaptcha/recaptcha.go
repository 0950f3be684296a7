// Package recaptcha verifies Google reCAPTCHA v2/v3 tokens. This is the
// score-based variant of the provider facade: when a field enables score
// validation, the provider's confidence score must strictly beat the
// configured threshold.
package recaptcha

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/uvensys/formshield/lib/captcha"
	"github.com/uvensys/formshield/lib/integration"
)

const VerificationURL = "https://www.google.com/recaptcha/api/siteverify"

func init() {
	captcha.Register(integration.Recaptcha, &Impl{})
}

type Impl struct {
	// Client overrides the outbound HTTP client, for tests.
	Client *http.Client

	// URL overrides VerificationURL, for tests.
	URL string
}

func (i *Impl) verifyURL() string {
	if i.URL != "" {
		return i.URL
	}
	return VerificationURL
}

func (i *Impl) Verify(ctx context.Context, lg *slog.Logger, in *captcha.VerifyInput) (captcha.Outcome, error) {
	if !in.Integration.Configured(integration.Recaptcha) {
		return captcha.Reject(captcha.ReasonNotConfigured), captcha.ErrNotConfigured
	}

	resp, err := captcha.SiteVerify(ctx, i.Client, i.verifyURL(), in.Integration.SecretKey, in.Token, in.RemoteIP)
	if err != nil {
		return captcha.Reject(captcha.ReasonProviderError), captcha.NewError("verify recaptcha token", "recaptcha_failure_message", err)
	}

	if resp.Success == nil || !*resp.Success {
		lg.Debug("recaptcha rejected token", "error_codes", resp.ErrorCodes)
		return captcha.Reject(captcha.ReasonProviderError), nil
	}

	if in.Field == nil || !in.Field.ScoreValidation {
		return captcha.Accept(), nil
	}

	if resp.Score == nil {
		return captcha.Reject(captcha.ReasonProviderError), fmt.Errorf("%w: score validation is enabled but the response has no score", captcha.ErrProviderUnreachable)
	}

	minScore := in.Field.MinScore
	if minScore == 0 {
		minScore = in.Integration.MinScore
	}

	// Strict inequality: a score exactly at the threshold is rejected.
	if *resp.Score <= minScore {
		lg.Debug("recaptcha score below threshold", "threshold", minScore)
		out := captcha.Reject(captcha.ReasonProviderError)
		out.Score = resp.Score
		return out, nil
	}

	out := captcha.Accept()
	out.Score = resp.Score
	return out, nil
}
