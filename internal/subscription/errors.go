package subscription

import (
	"errors"
	"fmt"
)

// ErrNotLink is returned for lines that are not URIs at all. Mixed-content
// bodies (comments, banners) produce it for every non-link line.
var ErrNotLink = errors.New("subscription: not a link")

// UnsupportedSchemeError reports a well-formed link whose scheme is not one
// of the supported proxy protocols.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("subscription: unsupported scheme %q", e.Scheme)
}

// LinkError is a hard failure to decode a link of a supported scheme.
type LinkError struct {
	Scheme string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("subscription: parse %s link: %v", e.Scheme, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// IsSkip reports whether err marks a line that should be ignored silently
// rather than counted as a parse failure.
func IsSkip(err error) bool {
	if errors.Is(err, ErrNotLink) {
		return true
	}
	var unsupported *UnsupportedSchemeError
	return errors.As(err, &unsupported)
}
