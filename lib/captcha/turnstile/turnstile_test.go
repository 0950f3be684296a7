package turnstile

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/uvensys/formshield/lib/captcha"
	"github.com/uvensys/formshield/lib/integration"
)

func mkInput() *captcha.VerifyInput {
	return &captcha.VerifyInput{
		Token: "token",
		Field: &captcha.Field{Key: "plugin.turnstile"},
		Integration: &integration.Integration{
			SiteKey:   "sk",
			SecretKey: "sec",
		},
	}
}

func TestVerify(t *testing.T) {
	for _, tt := range []struct {
		name     string
		status   int
		body     string
		accepted bool
		err      error
	}{
		{
			name:     "success",
			status:   http.StatusOK,
			body:     `{"success": true, "hostname": "example.com"}`,
			accepted: true,
		},
		{
			name:     "failure",
			status:   http.StatusOK,
			body:     `{"success": false, "error-codes": ["timeout-or-duplicate"]}`,
			accepted: false,
		},
		{
			name:     "missing success key",
			status:   http.StatusOK,
			body:     `{}`,
			accepted: false,
		},
		{
			name:     "non-2xx response",
			status:   http.StatusBadGateway,
			body:     `upstream error`,
			accepted: false,
			err:      captcha.ErrProviderUnreachable,
		},
		{
			name:     "garbage body",
			status:   http.StatusOK,
			body:     `<!doctype html>`,
			accepted: false,
			err:      captcha.ErrProviderUnreachable,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			i := &Impl{URL: srv.URL}

			out, err := i.Verify(t.Context(), slog.With(), mkInput())
			if !errors.Is(err, tt.err) {
				t.Errorf("wanted error %v, got: %v", tt.err, err)
			}
			if out.Accepted != tt.accepted {
				t.Errorf("wanted accepted=%v, got: %v (reason %s)", tt.accepted, out.Accepted, out.Reason)
			}
		})
	}
}
