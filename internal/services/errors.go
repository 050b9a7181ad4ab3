package services

import (
	"errors"
	"fmt"
)

// NotFoundError indicates the referenced tenant (or related record) does
// not exist or is soft-deleted
type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a new not-found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFoundError checks if an error is a NotFoundError
func IsNotFoundError(err error) (*NotFoundError, bool) {
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return notFoundErr, true
	}
	return nil, false
}

// ValidationError represents an invalid request argument
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr, true
	}
	return nil, false
}

// DepthExceededError indicates a create or move would place a node at or
// beyond the configured maximum level
type DepthExceededError struct {
	TenantID string `json:"tenant_id,omitempty"`
	ParentID string `json:"parent_id"`
	MaxDepth int    `json:"max_depth"`
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("hierarchy depth limit of %d levels exceeded under parent %s", e.MaxDepth, e.ParentID)
}

// NewDepthExceededError creates a new depth-exceeded error
func NewDepthExceededError(tenantID, parentID string, maxDepth int) *DepthExceededError {
	return &DepthExceededError{TenantID: tenantID, ParentID: parentID, MaxDepth: maxDepth}
}

// IsDepthExceededError checks if an error is a DepthExceededError
func IsDepthExceededError(err error) (*DepthExceededError, bool) {
	var depthErr *DepthExceededError
	if errors.As(err, &depthErr) {
		return depthErr, true
	}
	return nil, false
}

// CircularReferenceError indicates a move target is the node itself or one
// of its own descendants
type CircularReferenceError struct {
	TenantID    string `json:"tenant_id"`
	NewParentID string `json:"new_parent_id"`
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("moving tenant %s under %s would create a cycle", e.TenantID, e.NewParentID)
}

// NewCircularReferenceError creates a new circular-reference error
func NewCircularReferenceError(tenantID, newParentID string) *CircularReferenceError {
	return &CircularReferenceError{TenantID: tenantID, NewParentID: newParentID}
}

// IsCircularReferenceError checks if an error is a CircularReferenceError
func IsCircularReferenceError(err error) (*CircularReferenceError, bool) {
	var circularErr *CircularReferenceError
	if errors.As(err, &circularErr) {
		return circularErr, true
	}
	return nil, false
}

// HasChildrenError indicates a non-cascading delete was attempted on a
// tenant that still has direct children
type HasChildrenError struct {
	TenantID      string `json:"tenant_id"`
	ChildrenCount int64  `json:"children_count"`
}

func (e *HasChildrenError) Error() string {
	return fmt.Sprintf("tenant %s has %d direct children; move or delete them first, or use cascade", e.TenantID, e.ChildrenCount)
}

// NewHasChildrenError creates a new has-children error
func NewHasChildrenError(tenantID string, count int64) *HasChildrenError {
	return &HasChildrenError{TenantID: tenantID, ChildrenCount: count}
}

// IsHasChildrenError checks if an error is a HasChildrenError
func IsHasChildrenError(err error) (*HasChildrenError, bool) {
	var childrenErr *HasChildrenError
	if errors.As(err, &childrenErr) {
		return childrenErr, true
	}
	return nil, false
}

// SlugConflictError indicates a storage-level unique-constraint violation
// on slug or external id despite the pre-check. Retryable: the caller may
// regenerate the slug and try again before surfacing a hard failure.
type SlugConflictError struct {
	Slug string `json:"slug"`
}

func (e *SlugConflictError) Error() string {
	return fmt.Sprintf("slug %q already taken", e.Slug)
}

// NewSlugConflictError creates a new slug-conflict error
func NewSlugConflictError(slug string) *SlugConflictError {
	return &SlugConflictError{Slug: slug}
}

// IsSlugConflictError checks if an error is a SlugConflictError
func IsSlugConflictError(err error) (*SlugConflictError, bool) {
	var slugErr *SlugConflictError
	if errors.As(err, &slugErr) {
		return slugErr, true
	}
	return nil, false
}

// StorageError wraps persistence failures (connectivity, aborted
// transactions). Not retried here: a blind retry of a non-idempotent
// multi-row move could duplicate effects.
type StorageError struct {
	Op  string `json:"op"`
	Err error  `json:"-"`
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err as a storage error for the given operation
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError checks if an error is a StorageError
func IsStorageError(err error) (*StorageError, bool) {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr, true
	}
	return nil, false
}
