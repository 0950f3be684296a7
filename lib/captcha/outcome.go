package captcha

// Reason explains why a verification ended the way it did. Reasons are for
// logs and metrics only and are never shown to the submitter, so that the
// proof-of-work scheme and score thresholds cannot be probed through error
// messages.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonExpired       Reason = "expired"
	ReasonBadSignature  Reason = "bad_signature"
	ReasonBadNumber     Reason = "bad_number"
	ReasonMalformed     Reason = "malformed"
	ReasonProviderError Reason = "provider_error"
	ReasonNotConfigured Reason = "not_configured"
)

// Outcome is the result of verifying one CAPTCHA field.
type Outcome struct {
	Accepted bool    `json:"accepted"`
	Reason   Reason  `json:"reason"`
	Score    *float64 `json:"score,omitempty"`
}

// Accept is the one true "it passed" outcome.
func Accept() Outcome {
	return Outcome{Accepted: true, Reason: ReasonOK}
}

// Reject recovers a failed check into a boolean rejection with a reason
// code. Rejections are values, not errors.
func Reject(reason Reason) Outcome {
	return Outcome{Accepted: false, Reason: reason}
}
