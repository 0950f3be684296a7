package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one outbound verification call. Providers are not
// retried; a timeout surfaces as ErrProviderUnreachable and the submission
// is rejected (fail closed).
const DefaultTimeout = 10 * time.Second

// DefaultClient is the HTTP client provider verifiers share unless one is
// injected for tests.
var DefaultClient = &http.Client{Timeout: DefaultTimeout}

// SiteVerifyResponse is the JSON body every siteverify-style endpoint
// returns. Success is a pointer so a body without the key can be told apart
// from success=false.
type SiteVerifyResponse struct {
	Success     *bool    `json:"success"`
	Score       *float64 `json:"score"`
	Action      string   `json:"action,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// SiteVerify POSTs a token to a provider's fixed verification URL using the
// form-encoded protocol all three providers share: secret, response, and
// remoteip when the caller has one. Any transport, status, or decode failure
// wraps ErrProviderUnreachable.
func SiteVerify(ctx context.Context, client *http.Client, verifyURL, secret, token, remoteIP string) (*SiteVerifyResponse, error) {
	if client == nil {
		client = DefaultClient
	}

	form := url.Values{}
	form.Set("secret", secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: can't build request: %w", ErrProviderUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrProviderUnreachable, resp.StatusCode, verifyURL)
	}

	var result SiteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: can't decode response body: %w", ErrProviderUnreachable, err)
	}

	return &result, nil
}
