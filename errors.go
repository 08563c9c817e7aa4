package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMalformedToken    = "MALFORMED_TOKEN"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeUserNotFound      = "USER_NOT_FOUND"
	TextCodeAlreadyApproved   = "USER_ALREADY_APPROVED"
	TextCodeInvalidHash       = "INVALID_HASH"
	TextCodeStoreError        = "STORE_ERROR"
	TextCodeDuplicateIdentity = "DUPLICATE_IDENTITY"
	TextCodeEmptyPassword     = "EMPTY_PASSWORD"
	TextCodePasswordTooLong   = "PASSWORD_TOO_LONG"
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodeMissingColumns    = "MISSING_REQUIRED_COLUMNS"
	TextCodeInvalidExpression = "INVALID_TIME_EXPRESSION"
)

// ErrMalformedToken is returned when a hash link cannot be decoded
var ErrMalformedToken = goerrors.New("activate link is malformed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMalformedToken).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned when the hash link expiry is in the past
var ErrTokenExpired = goerrors.New("activate link is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotFound is returned when the token subject does not exist
var ErrUserNotFound = goerrors.New("user does not exist", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAlreadyApproved is returned when approving an active identity
var ErrAlreadyApproved = goerrors.New("user is already approved", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyApproved).
	WithCode(goerrors.CodeConflict)

// ErrInvalidHash is returned when the integrity tag does not match the subject
var ErrInvalidHash = goerrors.New("invalid hash", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidHash).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordTooLong is returned when a password exceeds the bcrypt input limit
var ErrPasswordTooLong = goerrors.New("password can not be longer than 72 bytes", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordTooLong).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// FailureKind tags the failures raised by the codec, the store and the lifecycle
type FailureKind string

const (
	KindNone            FailureKind = ""
	KindMalformedToken  FailureKind = "malformed_token"
	KindExpired         FailureKind = "expired"
	KindUserNotFound    FailureKind = "user_not_found"
	KindAlreadyApproved FailureKind = "already_approved"
	KindInvalidHash     FailureKind = "invalid_hash"
	KindStoreError      FailureKind = "store_error"
	KindOther           FailureKind = "other"
)

// KindOf resolves the failure kind carried by err
func KindOf(err error) FailureKind {
	if err == nil {
		return KindNone
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindOther
	}

	switch richErr.TextCode {
	case TextCodeMalformedToken:
		return KindMalformedToken
	case TextCodeTokenExpired:
		return KindExpired
	case TextCodeUserNotFound:
		return KindUserNotFound
	case TextCodeAlreadyApproved:
		return KindAlreadyApproved
	case TextCodeInvalidHash:
		return KindInvalidHash
	case TextCodeStoreError, TextCodeDuplicateIdentity:
		return KindStoreError
	}
	return KindOther
}

// NewStoreError wraps a persistence failure. Unique constraint violations
// are reported as conflicts so callers can tell them apart from outages.
func NewStoreError(err error, operation string) *goerrors.Error {
	if isConstraintViolation(err) {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "identity already exists").
			WithTextCode(TextCodeDuplicateIdentity).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{"operation": operation})
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "identity store failure").
		WithTextCode(TextCodeStoreError).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"operation": operation})
}

// IsStoreError reports whether err came from the persistence layer
func IsStoreError(err error) bool {
	return KindOf(err) == KindStoreError
}

// IsTokenExpiredError will check for expired hash links
func IsTokenExpiredError(err error) bool {
	return KindOf(err) == KindExpired
}

// IsMalformedError will check for malformed hash links
func IsMalformedError(err error) bool {
	return KindOf(err) == KindMalformedToken
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}
