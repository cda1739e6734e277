package rate

import "errors"

var (
	// ErrInvalidQuota is returned for a quota with a non-positive limit or window.
	ErrInvalidQuota = errors.New("invalid rate quota")
)
