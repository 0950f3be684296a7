package hcaptcha

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/uvensys/formshield/lib/captcha"
	"github.com/uvensys/formshield/lib/integration"
)

func TestVerify(t *testing.T) {
	for _, tt := range []struct {
		name     string
		body     string
		accepted bool
	}{
		{name: "success", body: `{"success": true}`, accepted: true},
		{name: "failure", body: `{"success": false}`, accepted: false},
		{name: "missing success key", body: `{"credit": false}`, accepted: false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var gotRemoteIP string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRemoteIP = r.PostFormValue("remoteip")
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			i := &Impl{URL: srv.URL}

			out, err := i.Verify(t.Context(), slog.With(), &captcha.VerifyInput{
				Token:       "token",
				RemoteIP:    "203.0.113.7",
				Field:       &captcha.Field{Key: "plugin.hcaptcha"},
				Integration: &integration.Integration{SiteKey: "sk", SecretKey: "sec"},
			})
			if err != nil {
				t.Fatal(err)
			}

			if out.Accepted != tt.accepted {
				t.Errorf("wanted accepted=%v, got: %v (reason %s)", tt.accepted, out.Accepted, out.Reason)
			}

			if gotRemoteIP != "203.0.113.7" {
				t.Errorf("remoteip was not forwarded, got: %q", gotRemoteIP)
			}
		})
	}
}
