// internal/api/error_codes.go
package api

// API error code constants.
const (
	// Generic errors.
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"

	// Session and phase errors.
	ErrorNoSession    = "NO_SESSION"
	ErrorWrongPhase   = "WRONG_PHASE"
	ErrorSaveNotFound = "SAVE_NOT_FOUND"

	// Travel errors.
	ErrorZoneNotFound   = "ZONE_NOT_FOUND"
	ErrorDestinationBad = "DESTINATION_UNREACHABLE"

	// Combat errors.
	ErrorCombatNotRunning = "COMBAT_NOT_RUNNING"
	ErrorActionInvalid    = "ACTION_INVALID"

	// Creative bridge errors.
	ErrorNoBatch          = "NO_OUTSTANDING_BATCH"
	ErrorBatchOutstanding = "BATCH_OUTSTANDING"
	ErrorResponseUnparsed = "RESPONSE_UNPARSEABLE"
	ErrorNarratorUnset    = "NARRATOR_NOT_CONFIGURED"
	ErrorNarratorFailed   = "NARRATOR_CALL_FAILED"

	// Clock errors.
	ErrorClockNotFound = "CLOCK_NOT_FOUND"

	// Storage and audit errors.
	ErrorStorageFailed    = "STORAGE_FAILED"
	ErrorAuditUnavailable = "AUDIT_UNAVAILABLE"
)
