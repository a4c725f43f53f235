// ABOUTME: Sentinel errors shared across layers
// ABOUTME: Callers wrap these with %w and test with errors.Is
package models

import "errors"

var (
	// ErrNotFound is returned when a referenced row does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input such as a bad UUID or missing field
	ErrValidation = errors.New("validation failed")
	// ErrCycleViolation is returned when a re-parent would create a cycle
	ErrCycleViolation = errors.New("cycle violation")
	// ErrPermission is returned on cross-user access
	ErrPermission = errors.New("permission denied")
	// ErrMediaProcessing is returned when audio/video cannot be transcoded
	ErrMediaProcessing = errors.New("media processing failed")
	// ErrUnauthorized is returned when an API key is missing or unknown
	ErrUnauthorized = errors.New("unauthorized")
)

// GenericErrorMessage is the generic reply for unexpected failures
const GenericErrorMessage = "An error occurred. Please try again."

// UnavailableMessage is the reply when an upstream service keeps failing
const UnavailableMessage = "Service temporarily unavailable."
