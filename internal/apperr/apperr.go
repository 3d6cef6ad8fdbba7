// Package apperr defines the sentinel errors shared across the search core.
//
// Per the error-handling policy (§7), almost none of these ever reach an
// HTTP caller as an error response — they are internal signals that a
// component's caller maps to a typed fallback. They exist so the policy can
// be implemented with errors.Is rather than string matching.
package apperr

import "errors"

var (
	// ErrQuotaShaped marks a platform response recognized as a quota-shaped
	// failure (403 with quotaExceeded|dailyLimitExceeded|rateLimitExceeded),
	// used by the platform adapter to trigger credential rotation (§4.3).
	ErrQuotaShaped = errors.New("apperr: quota-shaped provider failure")

	// ErrCredentialsExhausted is returned once every credential in one
	// rotation cycle has failed with a quota-shaped error.
	ErrCredentialsExhausted = errors.New("apperr: all credentials exhausted")

	// ErrSessionNotFound signals a missing or expired session to internal
	// callers. The session-view HTTP handlers answer it (like any other view
	// error) with a 404; no empty or expired page shape is returned.
	ErrSessionNotFound = errors.New("apperr: session not found or expired")

	// ErrNoCredentials marks a feature whose credentials are absent, used by
	// feature-state resolution.
	ErrNoCredentials = errors.New("apperr: no credentials configured")
)
