package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input. Nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers both absent resources and resources owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrConstraintViolation marks uniqueness and foreign-key conflicts.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrUploadRejected marks an upload that broke the extension, size or count policy.
	ErrUploadRejected = errors.New("upload rejected")
	// ErrFileMissing means the attachment row exists but its bytes do not.
	ErrFileMissing = errors.New("file missing")
	// ErrUpstream marks a failed, timed out or erroring external agent call.
	ErrUpstream = errors.New("upstream failure")
)

// Constraint names surfaced through ConstraintError.
const (
	ConstraintUserEmail      = "users_email"
	ConstraintAttachmentLink = "attachment_links_attachment_id"
	ConstraintForeignKey     = "foreign_key"
)

// ConstraintError is a typed constraint violation.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("constraint %s violated: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint %s violated", e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Is matches ErrConstraintViolation and any ConstraintError on the same constraint.
func (e *ConstraintError) Is(target error) bool {
	if target == ErrConstraintViolation {
		return true
	}
	var other *ConstraintError
	if errors.As(target, &other) {
		return other.Constraint == e.Constraint
	}
	return false
}

var (
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = &ConstraintError{Constraint: ConstraintUserEmail}
	// ErrAttachmentLinked is returned when relinking an attachment to another message.
	ErrAttachmentLinked = &ConstraintError{Constraint: ConstraintAttachmentLink}
)

// UploadRejectReason identifies which upload policy was violated.
type UploadRejectReason string

const (
	RejectNoFiles       UploadRejectReason = "no_files"
	RejectExtension     UploadRejectReason = "extension"
	RejectFileTooLarge  UploadRejectReason = "file_too_large"
	RejectTotalTooLarge UploadRejectReason = "total_too_large"
	RejectTooManyFiles  UploadRejectReason = "too_many_files"
)

// UploadError describes a rejected upload.
type UploadError struct {
	Reason UploadRejectReason
	Detail string
}

func (e *UploadError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("upload rejected: %s", e.Reason)
	}
	return fmt.Sprintf("upload rejected: %s: %s", e.Reason, e.Detail)
}

func (e *UploadError) Is(target error) bool { return target == ErrUploadRejected }

// UpstreamError wraps a failed call to the external agent.
type UpstreamError struct {
	// Status is the HTTP status returned by the agent, zero on transport failures.
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("agent returned status %d", e.Status)
	}
	return fmt.Sprintf("agent request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Validationf builds an ErrValidation with detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
