// Package formshield contains the version number and wire-level defaults
// shared between the server and its subpackages.
package formshield

import "time"

var (
	// Version is the current version of formshield, set at build time.
	Version = "devel"

	// BasePrefix is the root URL prefix the application is served under, e.g. /forms.
	BasePrefix = ""
)

const (
	// APIPrefix is where all JSON API routes hang off of.
	APIPrefix = "/.formshield/api/"

	// DefaultMaxNumber is the default upper bound of the proof-of-work
	// search space. Raising it makes challenges take longer to solve,
	// it does not make them more secure.
	DefaultMaxNumber = 100000

	// DefaultChallengeTTL is the default lifetime of an issued challenge.
	DefaultChallengeTTL = 60 * time.Second
)
