package registry

import "github.com/zjrosen/ttr/internal/caseerr"

// Registry errors
var (
	ErrConfiguration = caseerr.ErrConfiguration
	ErrLookup        = caseerr.ErrLookup
	ErrDuplicateCase = caseerr.ErrDuplicateCase
	ErrNilCase       = caseerr.ErrNilCase
)

type (
	// ConfigurationError reports invalid input for a case.
	ConfigurationError = caseerr.ConfigurationError
	// LookupError reports a reference to a case name the registry does not hold.
	LookupError = caseerr.LookupError
)
