package inflight

import (
	"fmt"

	apperrors "github.com/oom-forensics/hprof-inflight/pkg/errors"
)

// Error codes this package raises, mapped onto the failure taxonomy in
// spec.md §7.
const (
	CodeMapError    = "MAP_ERROR"
	CodeFormatError = "FORMAT_ERROR"
	CodeLookupMiss  = "LOOKUP_MISS"
	CodeDecodeError = "DECODE_ERROR"
)

func errMap(message string, err error) error {
	return apperrors.Wrap(CodeMapError, message, err)
}

func errFormat(message string, err error) error {
	return apperrors.Wrap(CodeFormatError, message, err)
}

func errFormatf(format string, args ...any) error {
	return apperrors.New(CodeFormatError, fmt.Sprintf(format, args...))
}

func errDecode(message string, err error) error {
	return apperrors.Wrap(CodeDecodeError, message, err)
}
