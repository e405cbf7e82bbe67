// errors.go: structured error handling for weakstore operations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for weakstore operations.
const (
	// Validation errors (1xxx)
	ErrCodeNullKey       errors.ErrorCode = "WEAKSTORE_NULL_KEY"
	ErrCodeEmptyKeys     errors.ErrorCode = "WEAKSTORE_EMPTY_KEYS"
	ErrCodeDuplicateKey  errors.ErrorCode = "WEAKSTORE_DUPLICATE_KEY"
	ErrCodeUnweakableKey errors.ErrorCode = "WEAKSTORE_UNWEAKABLE_KEY"
	ErrCodeInvalidConfig errors.ErrorCode = "WEAKSTORE_INVALID_CONFIG"

	// Operation errors (2xxx)
	ErrCodeEntryGone    errors.ErrorCode = "WEAKSTORE_ENTRY_GONE"
	ErrCodeAlreadyExist errors.ErrorCode = "WEAKSTORE_ALREADY_EXISTS"

	// Factory errors (3xxx)
	ErrCodeFactoryPanic  errors.ErrorCode = "WEAKSTORE_FACTORY_PANIC"
	ErrCodeFactoryFailed errors.ErrorCode = "WEAKSTORE_FACTORY_FAILED"
	ErrCodeReleasePanic  errors.ErrorCode = "WEAKSTORE_RELEASE_PANIC"

	// Internal errors (5xxx)
	ErrCodeInternalError errors.ErrorCode = "WEAKSTORE_INTERNAL_ERROR"
	ErrCodeClosed        errors.ErrorCode = "WEAKSTORE_CLOSED"
)

// Common error messages.
const (
	msgNullKey       = "key cannot be nil"
	msgEmptyKeys     = "at least one key is required"
	msgDuplicateKey  = "the same key was supplied more than once"
	msgKeyExists     = "an entry already exists for this key"
	msgUnweakableKey = "key value has no independent identity to track weakly"
	msgInvalidConfig = "invalid configuration"
	msgEntryGone     = "entry was reclaimed before it could be read"
	msgAlreadyExist  = "an entry already exists for this key set"
	msgFactoryPanic  = "GetOrCreate factory panicked"
	msgFactoryFailed = "GetOrCreate factory returned an error"
	msgReleasePanic  = "release callback panicked"
	msgInternalError = "internal weakstore error"
	msgClosed        = "store is closed"
)

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// newErrNullKey creates an error for a nil key argument.
func newErrNullKey() error {
	return errors.New(ErrCodeNullKey, msgNullKey)
}

// NewErrEmptyKeys creates an error for a zero-length key tuple.
func NewErrEmptyKeys(operation string) error {
	return errors.NewWithField(ErrCodeEmptyKeys, msgEmptyKeys, "operation", operation)
}

// NewErrDuplicateKey creates an error for a repeated key within one tuple.
func NewErrDuplicateKey(index int) error {
	return errors.NewWithContext(ErrCodeDuplicateKey, msgDuplicateKey, map[string]interface{}{
		"index": index,
	})
}

// NewErrKeyAlreadyExists creates an error for WeakTable.Add when a live
// entry already exists for the key. Distinct from NewErrDuplicateKey (a
// single MultiKeyStore call repeating one key across its own tuple), but
// shares its error code: both describe the same underlying problem, a key
// that must be unique appearing where it already is.
func NewErrKeyAlreadyExists() error {
	return errors.New(ErrCodeDuplicateKey, msgKeyExists)
}

// newErrUnweakableKey creates an error for a key with no trackable identity.
func newErrUnweakableKey(reason string) error {
	return errors.NewWithField(ErrCodeUnweakableKey, msgUnweakableKey, "reason", reason)
}

// NewErrInvalidConfig creates an error for a rejected Config.
func NewErrInvalidConfig(field string, reason string) error {
	return errors.NewWithContext(ErrCodeInvalidConfig, msgInvalidConfig, map[string]interface{}{
		"field":  field,
		"reason": reason,
	})
}

// =============================================================================
// OPERATION ERRORS
// =============================================================================

// NewErrEntryGone creates an error for a read that raced a reclaim.
func NewErrEntryGone() error {
	return errors.New(ErrCodeEntryGone, msgEntryGone).AsRetryable()
}

// NewErrAlreadyExists creates an ErrCodeAlreadyExist error for an
// insert-only collision. WeakTable does not return it: TryAdd reports a
// collision as false, and Add returns NewErrKeyAlreadyExists.
func NewErrAlreadyExists() error {
	return errors.New(ErrCodeAlreadyExist, msgAlreadyExist)
}

// NewErrClosed creates an error for operations on a closed store.
func NewErrClosed(operation string) error {
	return errors.NewWithField(ErrCodeClosed, msgClosed, "operation", operation)
}

// =============================================================================
// FACTORY / RELEASE ERRORS
// =============================================================================

// NewErrFactoryPanic creates an error when a GetOrCreate factory panics. The
// panic is always recovered; it never propagates out of GetOrCreate.
func NewErrFactoryPanic(panicValue interface{}) error {
	return errors.NewWithContext(ErrCodeFactoryPanic, msgFactoryPanic, map[string]interface{}{
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// NewErrFactoryFailed wraps an error returned by a GetOrCreate factory.
func NewErrFactoryFailed(cause error) error {
	return errors.Wrap(cause, ErrCodeFactoryFailed, msgFactoryFailed)
}

// newErrReleasePanic creates an error when a Config.OnRelease hook panics.
// Logged and discarded by the caller; it never aborts sibling disposals.
func newErrReleasePanic(panicValue interface{}) error {
	return errors.NewWithContext(ErrCodeReleasePanic, msgReleasePanic, map[string]interface{}{
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("warning")
}

// =============================================================================
// INTERNAL ERRORS
// =============================================================================

// newErrInternal creates a generic internal error.
func newErrInternal(operation string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInternalError, msgInternalError).
			WithContext("operation", operation).
			WithSeverity("warning")
	}
	return errors.NewWithField(ErrCodeInternalError, msgInternalError, "operation", operation).
		WithSeverity("warning")
}

// =============================================================================
// ERROR CHECKING HELPERS
// =============================================================================

// IsNullKey reports whether err is a nil-key error.
func IsNullKey(err error) bool {
	return errors.HasCode(err, ErrCodeNullKey)
}

// IsEmptyKeys reports whether err is an empty-key-tuple error.
func IsEmptyKeys(err error) bool {
	return errors.HasCode(err, ErrCodeEmptyKeys)
}

// IsDuplicateKey reports whether err is a duplicate-key error.
func IsDuplicateKey(err error) bool {
	return errors.HasCode(err, ErrCodeDuplicateKey)
}

// IsUnweakableKey reports whether err is an unweakable-key-value error.
func IsUnweakableKey(err error) bool {
	return errors.HasCode(err, ErrCodeUnweakableKey)
}

// IsEntryGone reports whether err is a reclaimed-before-read error.
func IsEntryGone(err error) bool {
	return errors.HasCode(err, ErrCodeEntryGone)
}

// IsAlreadyExists reports whether err carries ErrCodeAlreadyExist (see
// NewErrAlreadyExists). WeakTable.Add's collision error is matched by
// IsDuplicateKey instead.
func IsAlreadyExists(err error) bool {
	return errors.HasCode(err, ErrCodeAlreadyExist)
}

// IsFactoryError reports whether err originated from a GetOrCreate factory.
func IsFactoryError(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		code := coder.ErrorCode()
		return code == ErrCodeFactoryPanic || code == ErrCodeFactoryFailed
	}
	return false
}

// IsRetryable reports whether err can be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from err, or "" if it has none.
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts the structured context attached to err, if any.
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var wsErr *errors.Error
	if goerrors.As(err, &wsErr) {
		return wsErr.Context
	}
	return nil
}
