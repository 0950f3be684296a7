// Package hcaptcha verifies hCaptcha tokens, the token-based pass/fail
// variant of the provider facade.
package hcaptcha

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/uvensys/formshield/lib/captcha"
	"github.com/uvensys/formshield/lib/integration"
)

const VerificationURL = "https://api.hcaptcha.com/siteverify"

func init() {
	captcha.Register(integration.Hcaptcha, &Impl{})
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
	if !in.Integration.Configured(integration.Hcaptcha) {
		return captcha.Reject(captcha.ReasonNotConfigured), captcha.ErrNotConfigured
	}

	resp, err := captcha.SiteVerify(ctx, i.Client, i.verifyURL(), in.Integration.SecretKey, in.Token, in.RemoteIP)
	if err != nil {
		return captcha.Reject(captcha.ReasonProviderError), captcha.NewError("verify hcaptcha token", "hcaptcha_failure_message", err)
	}

	if resp.Success == nil || !*resp.Success {
		lg.Debug("hcaptcha rejected token", "error_codes", resp.ErrorCodes)
		return captcha.Reject(captcha.ReasonProviderError), nil
	}

	return captcha.Accept(), nil
}
