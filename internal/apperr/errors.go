// Package apperr holds the sentinel errors shared by the store, service and transport layers.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateName    = errors.New("duplicate tag name")
	ErrNoFieldsProvided = errors.New("no fields provided")
	ErrSelfAssociation  = errors.New("tag cannot be associated with itself")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
)
