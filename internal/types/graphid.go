package types

import (
	"fmt"
	"regexp"
)

// MaxGraphIDLength bounds tenant graph identifiers so derived file names stay
// well under filesystem limits.
const MaxGraphIDLength = 128

var graphIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateGraphID checks a tenant graph identifier against the allow-list
// (ASCII letters, digits, underscore, hyphen). Identifiers are used to derive
// on-disk paths, so anything else is rejected before any I/O happens.
func ValidateGraphID(graphID string) error {
	if graphID == "" {
		return NewError(INVALID_IDENTIFIER, "graph id cannot be empty")
	}
	if len(graphID) > MaxGraphIDLength {
		return NewError(INVALID_IDENTIFIER,
			fmt.Sprintf("graph id exceeds %d characters", MaxGraphIDLength))
	}
	if !graphIDPattern.MatchString(graphID) {
		return NewError(INVALID_IDENTIFIER,
			fmt.Sprintf("graph id %q contains characters outside [A-Za-z0-9_-]", graphID))
	}
	return nil
}
