// pkg/constant/errors.go
package constant

import "errors"

// Per-file failure taxonomy. Every per-file error returned by a service wraps
// exactly one of these with %w, so callers classify with errors.Is.
var (
	// ErrDecode means the pixel data is unreadable, malformed, or too small
	// for the watermark transform.
	ErrDecode = errors.New("decode error")

	// ErrFormatRejected means the container is not approved and no
	// conversion path exists.
	ErrFormatRejected = errors.New("format rejected")

	// ErrNeedsConversion means the container is convertible but was not
	// converted (audit mode never converts).
	ErrNeedsConversion = errors.New("format needs conversion")

	// ErrMetadata means a required metadata field cannot be set or cleared.
	ErrMetadata = errors.New("metadata error")

	// ErrVerificationMismatch means the file is readable but non-compliant:
	// the watermark is missing or disallowed metadata is present.
	ErrVerificationMismatch = errors.New("verification mismatch")
)

// Batch-level conditions.
var (
	// ErrBatchTimeout marks files that had not completed when the batch
	// deadline expired.
	ErrBatchTimeout = errors.New("batch timeout")

	// ErrInfrastructure aborts a whole batch, e.g. no target directory is
	// writable.
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrNotProcessed marks files abandoned after a fail-fast abort.
	ErrNotProcessed = errors.New("not processed")

	// ErrInvalidConfig is returned by the configuration layer.
	ErrInvalidConfig = errors.New("invalid configuration")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrDecode, "DecodeError"},
	{ErrFormatRejected, "FormatRejected"},
	{ErrNeedsConversion, "NeedsConversion"},
	{ErrMetadata, "MetadataError"},
	{ErrVerificationMismatch, "VerificationMismatch"},
	{ErrBatchTimeout, "BatchTimeout"},
	{ErrInfrastructure, "InfrastructureError"},
	{ErrNotProcessed, "NotProcessed"},
	{ErrInvalidConfig, "ConfigError"},
}

// Kind returns the taxonomy name of err, or "InternalError" for anything
// outside the taxonomy. A nil error has no kind.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "InternalError"
}
