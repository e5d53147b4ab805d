// Package errors provides structured error handling for ctxsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Extraction errors (per-file, recoverable)
//   - 3XX: Embedding errors (per-batch, retryable)
//   - 4XX: Store errors (catalog, vector, lexical)
//   - 5XX: Retrieval errors
//   - 6XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryExtraction indicates per-file content extraction errors.
	CategoryExtraction Category = "EXTRACTION"
	// CategoryEmbedding indicates embedding adapter errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryStore indicates catalog, vector, or lexical store errors.
	CategoryStore Category = "STORE"
	// CategoryRetrieval indicates search-time errors.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Extraction errors (200-299)
	ErrCodeExtractFailed      = "ERR_201_EXTRACT_FAILED"
	ErrCodeExtractTimeout     = "ERR_202_EXTRACT_TIMEOUT"
	ErrCodeExtractUnsupported = "ERR_203_EXTRACT_UNSUPPORTED"
	ErrCodeExtractBinary      = "ERR_204_EXTRACT_BINARY"

	// Embedding errors (300-399)
	ErrCodeEmbedFailed      = "ERR_301_EMBED_FAILED"
	ErrCodeEmbedTimeout     = "ERR_302_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable = "ERR_303_EMBED_UNAVAILABLE"
	ErrCodeEmbedDimension   = "ERR_304_EMBED_DIMENSION"

	// Store errors (400-499)
	ErrCodeStoreWrite        = "ERR_401_STORE_WRITE"
	ErrCodeStoreCorrupt      = "ERR_402_STORE_CORRUPT"
	ErrCodeStoreLocked       = "ERR_403_STORE_LOCKED"
	ErrCodeCheckpointCorrupt = "ERR_404_CHECKPOINT_CORRUPT"

	// Retrieval errors (500-599)
	ErrCodeSearchUnavailable = "ERR_501_SEARCH_UNAVAILABLE"
	ErrCodeQueryEmpty        = "ERR_502_QUERY_EMPTY"
	ErrCodeInvalidPage       = "ERR_503_INVALID_PAGE"

	// Internal errors (600-699)
	ErrCodeInternal = "ERR_601_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "201" from "ERR_201_EXTRACT_FAILED"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryExtraction
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryStore
	case '5':
		return CategoryRetrieval
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeStoreLocked:
		return SeverityFatal
	case ErrCodeCheckpointCorrupt:
		// Fresh-start recovery, never fatal.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedFailed, ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable, ErrCodeStoreWrite:
		return true
	default:
		return false
	}
}
