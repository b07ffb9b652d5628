package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
// Codes are prefixed by the module that raises them.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeUnknown    ErrorCode = "COMMON_000"
	ErrCodeInternal   ErrorCode = "COMMON_001"
	ErrCodeBadRequest ErrorCode = "COMMON_002"
	ErrCodeNotFound   ErrorCode = "COMMON_005"
	ErrCodeCanceled   ErrorCode = "COMMON_009"
	ErrCodeValidation ErrorCode = "COMMON_010"
	ErrCodeSerialization ErrorCode = "COMMON_011"
	ErrCodeCacheError    ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"

	CodeOK = ErrorCode("OK")
)

// Configuration Error Codes
const (
	ErrCodeConfigInvalid      ErrorCode = "CFG_001"
	ErrCodeParameterOutOfBand ErrorCode = "CFG_002"
)

// Demographic model Error Codes
const (
	ErrCodeSchemaMismatch     ErrorCode = "DEMO_001"
	ErrCodeMalformedVector    ErrorCode = "DEMO_002"
	ErrCodeUnknownAgeRange    ErrorCode = "DEMO_003"
)

// Census / population matrix Error Codes
const (
	ErrCodeCensusRowInvalid  ErrorCode = "CEN_001"
	ErrCodeEmptyCandidateSet ErrorCode = "CEN_002"
	ErrCodeDuplicateUnit     ErrorCode = "CEN_003"
)

// Scoring Error Codes
const (
	ErrCodeVectorLengthMismatch ErrorCode = "SCO_001"
	ErrCodeZeroPopulation       ErrorCode = "SCO_002"
)

// Spatial Error Codes
const (
	ErrCodeClusteringParams ErrorCode = "GEO_001"
	ErrCodeNoLocatedUnits   ErrorCode = "GEO_002"
)

// Optimizer Error Codes
const (
	ErrCodeOptimizerLimits ErrorCode = "OPT_001"
	ErrCodeEvaluationFailed ErrorCode = "OPT_002"
	ErrCodeRunInProgress    ErrorCode = "OPT_003"
)

// Tabular IO Error Codes
const (
	ErrCodeIORead       ErrorCode = "IO_001"
	ErrCodeIOWrite      ErrorCode = "IO_002"
	ErrCodeColumnMissing ErrorCode = "IO_003"
	ErrCodeUnsupportedFormat ErrorCode = "IO_004"
)

// ErrorCodeMessage maps ErrorCodes to the name of the invariant or condition
// they stand for.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeUnknown:         "unknown error",
	ErrCodeInternal:        "internal error",
	ErrCodeBadRequest:      "bad request",
	ErrCodeNotFound:        "resource not found",
	ErrCodeCanceled:        "run canceled",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeCacheError:      "cache error",
	ErrCodeExternalService: "external service error",

	ErrCodeConfigInvalid:      "invalid configuration",
	ErrCodeParameterOutOfBand: "parameter outside documented bounds",

	ErrCodeSchemaMismatch:  "schema mismatch",
	ErrCodeMalformedVector: "malformed probability vector",
	ErrCodeUnknownAgeRange: "age range not in bucket catalog",

	ErrCodeCensusRowInvalid:  "invalid census row",
	ErrCodeEmptyCandidateSet: "empty candidate set",
	ErrCodeDuplicateUnit:     "duplicate geographic unit",

	ErrCodeVectorLengthMismatch: "vector length mismatch",
	ErrCodeZeroPopulation:       "all-zero population vector",

	ErrCodeClusteringParams: "invalid clustering parameters",
	ErrCodeNoLocatedUnits:   "no units with coordinates",

	ErrCodeOptimizerLimits:  "invalid relaxation limits",
	ErrCodeEvaluationFailed: "pipeline evaluation failed",
	ErrCodeRunInProgress:    "another run holds the lock",

	ErrCodeIORead:            "failed to read input",
	ErrCodeIOWrite:           "failed to write output",
	ErrCodeColumnMissing:     "required column missing",
	ErrCodeUnsupportedFormat: "unsupported file format",
}

// exitCodes maps module prefixes to process exit statuses.
var exitCodes = map[string]int{
	"COMMON": 1,
	"CFG":    2,
	"DEMO":   3,
	"CEN":    4,
	"SCO":    5,
	"GEO":    6,
	"OPT":    7,
	"IO":     8,
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

// ExitCodeForCode returns the process exit status the CLI uses for code.
func ExitCodeForCode(code ErrorCode) int {
	if code == CodeOK {
		return 0
	}
	if status, ok := exitCodes[ModuleForCode(code)]; ok {
		return status
	}
	return 1
}
