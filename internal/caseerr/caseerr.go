// Package caseerr defines the error types shared by the definition loader,
// the case registry and everything built on them.
package caseerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrLookup        = errors.New("case lookup failed")
	ErrDuplicateCase = errors.New("duplicate case name")
	ErrNilCase       = errors.New("case cannot be nil")
)

// ConfigurationError reports invalid input for a case: a malformed tag, an
// unresolved macro, a missing required key, or an unusable artifact.
type ConfigurationError struct {
	Case   string
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Case != "" {
		fmt.Fprintf(&b, " in case %q", e.Case)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " at %s", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// LookupError reports a reference to a case name the registry does not hold.
type LookupError struct {
	Name  string
	From  string
	Known []string
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("case %q not found", e.Name)
	if e.From != "" {
		msg = fmt.Sprintf("case %q referenced by %s not found", e.Name, e.From)
	}
	return fmt.Sprintf("%s; known cases: %s", msg, strings.Join(e.Known, ", "))
}

func (e *LookupError) Unwrap() error { return ErrLookup }
