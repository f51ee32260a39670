package v1

import "errors"

var (
	// ErrInvalidResultSet is returned when a summary is requested for no results.
	ErrInvalidResultSet = errors.New("invalid result set: a runnable summary needs at least one result")

	// ErrPushNotFound is returned when a revision does not resolve on a branch.
	ErrPushNotFound = errors.New("push not found")

	// ErrDataUnavailable is returned when every configured source failed.
	ErrDataUnavailable = errors.New("data unavailable from all sources")

	// ErrContractNotFilled is returned by a source that cannot answer a request, so the
	// next source in priority order is consulted.
	ErrContractNotFilled = errors.New("contract not filled")
)
