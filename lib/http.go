// Package lib is the formshield HTTP surface: challenge issuance, form
// field discovery, and the submission endpoint that drives the validation
// pipeline and the deferred cleanup lifecycle.
package lib

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/uvensys/formshield/internal"
	"github.com/uvensys/formshield/lib/captcha"
	_ "github.com/uvensys/formshield/lib/captcha/hcaptcha"
	_ "github.com/uvensys/formshield/lib/captcha/recaptcha"
	_ "github.com/uvensys/formshield/lib/captcha/turnstile"
	"github.com/uvensys/formshield/lib/lead"
	"github.com/uvensys/formshield/lib/localization"
	"github.com/uvensys/formshield/lib/pipeline"
)

type Server struct {
	opts  Options
	proc  *pipeline.Processor
	leads *lead.Model
	mux   *http.ServeMux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// setCORSHeaders goes on every API response so the widget can call the
// challenge endpoint from any origin. Challenges carry no secrets, the
// HMAC key never leaves the server.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept-Language")
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("can't encode response body", "err", err)
	}
}

// Preflight answers CORS preflight requests for every API route.
func (s *Server) Preflight(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// MakeChallenge hands out a fresh proof-of-work challenge. The endpoint
// takes no caller parameters at all; difficulty and lifetime come from the
// server's configuration so clients cannot bargain them down.
func (s *Server) MakeChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)

	setCORSHeaders(w)

	ch, err := s.proc.IssueChallenge()
	switch {
	case errors.Is(err, captcha.ErrNotConfigured):
		lg.Debug("challenge requested but the proof-of-work integration is not configured")
		s.respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: localizer.T("challenge_unavailable")})
		return
	case err != nil:
		lg.Error("can't issue challenge", "err", err)
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: localizer.T("internal_server_error")})
		return
	}

	s.respondJSON(w, http.StatusOK, ch)
}

// Fields returns the CAPTCHA fields a form should render, one per
// configured integration.
func (s *Server) Fields(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)

	setCORSHeaders(w)

	fields, err := s.proc.BuildFields()
	if err != nil {
		lg.Error("can't build form fields", "err", err)
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: localizer.T("internal_server_error")})
		return
	}

	if fields == nil {
		fields = []pipeline.FormField{}
	}

	s.respondJSON(w, http.StatusOK, fields)
}

// CaptchaAnswer is the client's response for one CAPTCHA field of a
// submission.
type CaptchaAnswer struct {
	Key             string  `json:"key"`
	Integration     string  `json:"integration"`
	Token           string  `json:"token"`
	ScoreValidation bool    `json:"score_validation,omitempty"`
	MinScore        float64 `json:"min_score,omitempty"`
}

type SubmitRequest struct {
	Email   string            `json:"email"`
	Fields  map[string]string `json:"fields,omitempty"`
	Captcha []CaptchaAnswer   `json:"captcha"`
}

type SubmitResponse struct {
	Accepted bool              `json:"accepted"`
	ID       string            `json:"id,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Submit models the host form lifecycle end to end: verify, persist the
// contact record, notify the cleanup coordinator, write the response, then
// let the coordinator delete what a rejected submission left behind. The
// record is written even for rejected submissions; the deletion after the
// response is what keeps the store clean, exactly like a host CRM whose
// persistence layer runs before validation listeners get to veto.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)

	setCORSHeaders(w)

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: localizer.T("verification_failed")})
		return
	}

	if req.Email == "" {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: localizer.T("verification_failed")})
		return
	}

	sub := &pipeline.Submission{
		RemoteIP: remoteIP(r),
		Language: r.Header.Get("Accept-Language"),
	}
	for _, ans := range req.Captcha {
		sub.Fields = append(sub.Fields, pipeline.FieldSubmission{
			Key:             ans.Key,
			Integration:     ans.Integration,
			Token:           ans.Token,
			ScoreValidation: ans.ScoreValidation,
			MinScore:        ans.MinScore,
		})
	}

	result := s.proc.Process(r.Context(), lg, sub)

	// The cleanup must still run if the client disconnects mid-response.
	cleanupCtx := context.WithoutCancel(r.Context())

	id, isNew, err := s.leads.Save(cleanupCtx, &lead.Lead{
		Email:  req.Email,
		Fields: req.Fields,
	})
	if err != nil {
		lg.Error("can't persist contact record", "err", err)
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: localizer.T("internal_server_error")})
		return
	}

	if result.Cleanup != nil {
		result.Cleanup.LeadSaved(cleanupCtx, id, isNew)
	}

	if result.Accepted {
		s.respondJSON(w, http.StatusOK, SubmitResponse{Accepted: true, ID: id})
	} else {
		resp := SubmitResponse{Accepted: false, Errors: map[string]string{}}
		for _, fr := range result.Fields {
			if !fr.Accepted {
				resp.Errors[fr.Key] = fr.Message
			}
		}
		s.respondJSON(w, http.StatusUnprocessableEntity, resp)
	}

	if result.Cleanup != nil {
		result.Cleanup.ResponseFinished(cleanupCtx)
	}
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func remoteIP(r *http.Request) string {
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
