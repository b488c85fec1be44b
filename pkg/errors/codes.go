package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
// The part before the first underscore names the module.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
)

// Filter Module Error Codes
const (
	// ErrCodeInvalidQueryType: a chemical query type outside the closed set.
	ErrCodeInvalidQueryType ErrorCode = "FLT_001"
	// ErrCodeStructureMismatch: entity-level id derivation found a record
	// whose structure id base disagrees with the caller-supplied key.
	ErrCodeStructureMismatch ErrorCode = "FLT_002"
	// ErrCodeRecordDecode: a record field could not be decoded.
	ErrCodeRecordDecode ErrorCode = "FLT_003"
	// ErrCodeRemoteQueryFailed: the construction-time search call failed.
	ErrCodeRemoteQueryFailed ErrorCode = "FLT_004"
	// ErrCodeInvalidFilterConfig: a filter was configured with unusable values.
	ErrCodeInvalidFilterConfig ErrorCode = "FLT_005"
)

// Aliases used at call sites.
const (
	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")

	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeCacheError   = ErrCodeCacheError

	CodeInvalidQueryType    = ErrCodeInvalidQueryType
	CodeStructureMismatch   = ErrCodeStructureMismatch
	CodeRecordDecode        = ErrCodeRecordDecode
	CodeRemoteQueryFailed   = ErrCodeRemoteQueryFailed
	CodeInvalidFilterConfig = ErrCodeInvalidFilterConfig
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",

	ErrCodeInvalidQueryType:    "invalid search type",
	ErrCodeStructureMismatch:   "structure mismatch",
	ErrCodeRecordDecode:        "malformed structure record",
	ErrCodeRemoteQueryFailed:   "remote structure query failed",
	ErrCodeInvalidFilterConfig: "invalid filter configuration",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
