package lib

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/uvensys/formshield"
	"github.com/uvensys/formshield/data"
	"github.com/uvensys/formshield/lib/integration"
	"github.com/uvensys/formshield/lib/lead"
	"github.com/uvensys/formshield/lib/pipeline"
	"github.com/uvensys/formshield/lib/store"
)

type Options struct {
	// Config holds the per-provider integration settings.
	Config *integration.Config

	// Store is the datastore contact records live in.
	Store store.Interface

	// BasePrefix is the root URL the application is served under, e.g. /forms.
	BasePrefix string
}

// LoadIntegrationsOrDefault reads the integration configuration from fname,
// falling back to the built-in (everything disabled) configuration when
// fname is empty.
func LoadIntegrationsOrDefault(fname string) (*integration.Config, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't open integrations file %s: %w", fname, err)
		}
	} else {
		fname = "(data)/integrations.yaml"
		fin, err = data.Integrations.Open("integrations.yaml")
		if err != nil {
			return nil, fmt.Errorf("[unexpected] can't open builtin integrations file %s: %w", fname, err)
		}
	}

	defer func(fin io.ReadCloser) {
		if err := fin.Close(); err != nil {
			slog.Error("failed to close integrations file", "file", fname, "err", err)
		}
	}(fin)

	config, err := integration.Load(fin, fname)
	if err != nil {
		return nil, err
	}

	return config, nil
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("lib: Options.Config is required")
	}

	if opts.Store == nil {
		return nil, fmt.Errorf("lib: Options.Store is required")
	}

	formshield.BasePrefix = opts.BasePrefix

	leads := lead.NewModel(opts.Store)

	result := &Server{
		opts:  opts,
		leads: leads,
		proc: &pipeline.Processor{
			Config: opts.Config,
			Leads:  leads,
		},
	}

	mux := http.NewServeMux()

	// Helper to add global prefix
	registerWithPrefix := func(pattern string, handler http.Handler, method string) {
		if method != "" {
			method = method + " " // methods must end with a space to register with them
		}

		basePrefix := strings.TrimSuffix(formshield.BasePrefix, "/")
		prefix := method + basePrefix

		if !strings.HasPrefix(pattern, "/") {
			pattern = "/" + pattern
		}

		mux.Handle(prefix+pattern, handler)
	}

	registerWithPrefix(formshield.APIPrefix+"challenge", http.HandlerFunc(result.MakeChallenge), "GET")
	registerWithPrefix(formshield.APIPrefix+"challenge", http.HandlerFunc(result.Preflight), "OPTIONS")
	registerWithPrefix(formshield.APIPrefix+"fields", http.HandlerFunc(result.Fields), "GET")
	registerWithPrefix(formshield.APIPrefix+"fields", http.HandlerFunc(result.Preflight), "OPTIONS")
	registerWithPrefix(formshield.APIPrefix+"submit", http.HandlerFunc(result.Submit), "POST")
	registerWithPrefix(formshield.APIPrefix+"submit", http.HandlerFunc(result.Preflight), "OPTIONS")
	registerWithPrefix("/healthz", http.HandlerFunc(result.Healthz), "GET")

	result.mux = mux

	return result, nil
}
