// Package errs provides structured error types and helpers for pricestage services.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies a broad error category.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a concurrent mutation conflict.
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates the backing service is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
	// CodePrecondition indicates the pipeline is not in a state that allows the operation.
	CodePrecondition Code = "failed_precondition"
	// CodeStorage indicates a snapshot or audit backend failure.
	CodeStorage Code = "storage"
)

// CanonicalCode captures pipeline-level failure reasons.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalNothingToPromote indicates promote was called with an empty staging slot.
	CanonicalNothingToPromote CanonicalCode = "nothing_to_promote"
	// CanonicalNothingToRollBack indicates rollback was called with an empty backup slot.
	CanonicalNothingToRollBack CanonicalCode = "nothing_to_roll_back"
	// CanonicalStaleStaging indicates staging was rewritten after the caller inspected it.
	CanonicalStaleStaging CanonicalCode = "stale_staging"
	// CanonicalOverrideRequired indicates staged prices breach the variance guard and were not acknowledged.
	CanonicalOverrideRequired CanonicalCode = "override_required"
	// CanonicalMalformedSnapshot indicates a persisted snapshot payload could not be decoded.
	CanonicalMalformedSnapshot CanonicalCode = "malformed_snapshot"
)

// E captures structured error information produced across the pricestage stack.
type E struct {
	Scope       string
	Code        Code
	Message     string
	Canonical   CanonicalCode
	Dataset     string
	Metadata    map[string]string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:     strings.TrimSpace(scope),
		Code:      code,
		Canonical: CanonicalUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithDataset records the pipeline dataset the failure belongs to.
func WithDataset(dataset string) Option {
	trimmed := strings.TrimSpace(dataset)
	return func(e *E) {
		e.Dataset = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical error code describing the failure category.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.Dataset != "" {
		parts = append(parts, "dataset="+e.Dataset)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// IsCode reports whether err carries an envelope with the provided code.
func IsCode(err error, code Code) bool {
	var e *E
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// IsCanonical reports whether err carries an envelope with the provided canonical code.
func IsCanonical(err error, code CanonicalCode) bool {
	var e *E
	if !errors.As(err, &e) {
		return false
	}
	return e.Canonical == code
}
