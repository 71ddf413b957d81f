package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidID       = 1004
	ErrCodeInvalidKind     = 1005
	ErrCodeInvalidVariant  = 1006
	ErrCodeInvalidHash     = 1007
	ErrCodeInvalidChunk    = 1008
	ErrCodeMissingRequired = 1009
	ErrCodeInvalidTTL      = 1010
	ErrCodeInvalidSubject  = 1011

	// Domain state (2xxx)
	ErrCodeCapsuleNotFound = 2001
	ErrCodeMemoryNotFound  = 2002
	ErrCodeAssetNotFound   = 2003
	ErrCodeSessionNotFound = 2004
	ErrCodeUploadExpired   = 2005
	ErrCodeUserNotFound    = 2006
	ErrCodeChunkReceived   = 2101
	ErrCodeHashMismatch    = 2102
	ErrCodeConflict        = 2103

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodeQuotaSessions     = 3004
	ErrCodeQuotaDaily        = 3005
	ErrCodeQuotaStoredBytes  = 3006
	ErrCodeTokenExpired      = 3007
	ErrCodeTokenInvalid      = 3008

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
	ErrCodeBlobFailure  = 4003
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeMemoryNotFound
	case 409:
		return ErrCodeConflict
	case 410:
		return ErrCodeUploadExpired
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
