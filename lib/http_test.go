package lib

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/uvensys/formshield"
	"github.com/uvensys/formshield/lib/captcha/altcha"
	"github.com/uvensys/formshield/lib/integration"
	"github.com/uvensys/formshield/lib/lead"
	"github.com/uvensys/formshield/lib/store/memory"
)

func spawnServer(t *testing.T, config *integration.Config) *Server {
	t.Helper()

	s, err := New(Options{
		Config: config,
		Store:  memory.New(t.Context()),
	})
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func altchaConfig() *integration.Config {
	return &integration.Config{
		Integrations: map[string]integration.Integration{
			integration.Altcha: {HMACKey: "test-key", MaxNumber: 1000},
		},
	}
}

func solve(t *testing.T, ch *altcha.Challenge) string {
	t.Helper()

	for n := int64(0); n <= int64(ch.MaxNumber); n++ {
		sum := sha256.Sum256([]byte(ch.Salt + strconv.FormatInt(n, 10)))
		if hex.EncodeToString(sum[:]) == ch.Challenge {
			data, err := json.Marshal(altcha.Payload{
				Algorithm: ch.Algorithm,
				Challenge: ch.Challenge,
				Number:    &n,
				Salt:      ch.Salt,
				Signature: ch.Signature,
			})
			if err != nil {
				t.Fatal(err)
			}
			return string(data)
		}
	}

	t.Fatal("challenge has no solution in range")
	return ""
}

func TestMakeChallenge(t *testing.T) {
	s := spawnServer(t, altchaConfig())

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, formshield.APIPrefix+"challenge", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("missing CORS header, got %q", got)
	}

	var ch altcha.Challenge
	if err := json.NewDecoder(w.Body).Decode(&ch); err != nil {
		t.Fatal(err)
	}
	if ch.Challenge == "" || ch.Salt == "" || ch.Signature == "" {
		t.Errorf("incomplete challenge: %+v", ch)
	}
}

func TestMakeChallengeUnconfigured(t *testing.T) {
	s := spawnServer(t, &integration.Config{})

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, formshield.APIPrefix+"challenge", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] == "" {
		t.Error("503 response has no error body")
	}
}

func TestChallengePreflight(t *testing.T) {
	s := spawnServer(t, altchaConfig())

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, formshield.APIPrefix+"challenge", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight response has no Access-Control-Allow-Methods header")
	}
}

func TestFields(t *testing.T) {
	s := spawnServer(t, altchaConfig())

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, formshield.APIPrefix+"fields", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var fields []struct {
		Integration string            `json:"integration"`
		Challenge   *altcha.Challenge `json:"challenge"`
	}
	if err := json.NewDecoder(w.Body).Decode(&fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 1 || fields[0].Challenge == nil {
		t.Errorf("expected one altcha field with a challenge, got %+v", fields)
	}
}

func TestHealthz(t *testing.T) {
	s := spawnServer(t, &integration.Config{})

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func (s *Server) submitJSON(t *testing.T, req SubmitRequest) (*httptest.ResponseRecorder, SubmitResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodPost, formshield.APIPrefix+"submit", bytes.NewReader(body)))

	var resp SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("can't decode submit response (status %d): %v", w.Code, err)
	}

	return w, resp
}

func TestSubmitAccepted(t *testing.T) {
	s := spawnServer(t, altchaConfig())

	ch, err := s.proc.IssueChallenge()
	if err != nil {
		t.Fatal(err)
	}

	w, resp := s.submitJSON(t, SubmitRequest{
		Email: "human@example.com",
		Captcha: []CaptchaAnswer{
			{Key: "form.altcha", Integration: integration.Altcha, Token: solve(t, ch)},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !resp.Accepted || resp.ID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// The record stays around, nothing armed the cleanup.
	if _, err := s.leads.Get(t.Context(), resp.ID); err != nil {
		t.Errorf("accepted submission's record should persist: %v", err)
	}
}

func TestSubmitRejectedCleansUp(t *testing.T) {
	s := spawnServer(t, altchaConfig())

	w, resp := s.submitJSON(t, SubmitRequest{
		Email: "bot@example.com",
		Captcha: []CaptchaAnswer{
			{Key: "form.altcha", Integration: integration.Altcha, Token: "garbage"},
		},
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if resp.Accepted {
		t.Fatal("garbage token accepted")
	}
	if resp.Errors["form.altcha"] == "" {
		t.Error("rejected field has no error message")
	}

	// The speculatively created record is gone after the response: saving
	// the same address again creates a fresh record instead of updating.
	_, isNew, err := s.leads.Save(t.Context(), &lead.Lead{Email: "bot@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Error("rejected submission left its contact record behind")
	}
}

func TestSubmitRejectedKeepsPreExistingContact(t *testing.T) {
	s := spawnServer(t, altchaConfig())

	// A legitimate submission creates the contact first.
	ch, err := s.proc.IssueChallenge()
	if err != nil {
		t.Fatal(err)
	}

	_, first := s.submitJSON(t, SubmitRequest{
		Email: "human@example.com",
		Captcha: []CaptchaAnswer{
			{Key: "form.altcha", Integration: integration.Altcha, Token: solve(t, ch)},
		},
	})
	if !first.Accepted {
		t.Fatal("setup submission rejected")
	}

	// A later failing submission against the same address must not delete
	// the pre-existing record.
	w, resp := s.submitJSON(t, SubmitRequest{
		Email: "human@example.com",
		Captcha: []CaptchaAnswer{
			{Key: "form.altcha", Integration: integration.Altcha, Token: "garbage"},
		},
	})
	if w.Code != http.StatusUnprocessableEntity || resp.Accepted {
		t.Fatalf("expected rejection, got %d %+v", w.Code, resp)
	}

	if _, err := s.leads.Get(t.Context(), first.ID); err != nil {
		t.Errorf("pre-existing contact should survive a rejected resubmission: %v", err)
	}
}

func TestSubmitMalformed(t *testing.T) {
	s := spawnServer(t, altchaConfig())

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodPost, formshield.APIPrefix+"submit", bytes.NewReader([]byte("not json"))))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}

	w2, _ := s.submitJSON(t, SubmitRequest{})
	if w2.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing email, got %d", w2.Code)
	}
}
