// Package captcha defines the capability every CAPTCHA verifier in
// formshield implements, a registry of verifier implementations, and the
// outcome type the validation pipeline consumes.
//
// Two kinds of verifiers exist: the self-hosted proof-of-work challenge
// (altcha) and the external provider facades (recaptcha, hcaptcha,
// turnstile). They share one contract so the pipeline does not care which
// one a form field is bound to.
package captcha

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/uvensys/formshield/lib/integration"
)

var (
	registry map[string]Impl = map[string]Impl{}
	regLock  sync.RWMutex
)

func Register(name string, impl Impl) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

func Get(name string) (Impl, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for method := range registry {
		result = append(result, method)
	}
	sort.Strings(result)
	return result
}

// Field carries the per-field verification settings a form builder attached
// to a CAPTCHA field. Tokens are threaded through here explicitly, never
// read from ambient request state.
type Field struct {
	// Key is the form field key, e.g. "plugin.recaptcha".
	Key string

	// ScoreValidation enables threshold checking for score-based
	// providers. Ignored by pass/fail providers.
	ScoreValidation bool

	// MinScore is the exclusive lower bound a score must beat when
	// ScoreValidation is set. A score equal to MinScore is rejected.
	MinScore float64
}

// VerifyInput is everything a verifier gets to work with for one field of
// one submission.
type VerifyInput struct {
	// Token is the client-supplied response: a provider token or a
	// proof-of-work solution payload.
	Token string

	// RemoteIP is the submitting client's IP address, forwarded to
	// providers that support it. May be empty.
	RemoteIP string

	Field       *Field
	Integration *integration.Integration
}

// Impl is one CAPTCHA verification method.
type Impl interface {
	// Verify checks one submitted token. A rejected Outcome with a nil
	// error is the user failing the CAPTCHA; a non-nil error is an
	// operational failure (network, decode) that must stay
	// distinguishable from a rejection in logs and metrics even though
	// the submission is rejected either way.
	Verify(ctx context.Context, lg *slog.Logger, in *VerifyInput) (Outcome, error)
}
