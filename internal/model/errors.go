package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrNoNextPage is returned when navigating forward on the last page.
	ErrNoNextPage = errors.New("no next page")
	// ErrNoPreviousPage is returned when navigating backward on the first page.
	ErrNoPreviousPage = errors.New("no previous page")
	// ErrEmptySelection is returned when dispatching a batch without selected items.
	ErrEmptySelection = errors.New("empty selection")
	// ErrNoSource is returned when an operation needs a submitted URL and there is none.
	ErrNoSource = errors.New("no source url submitted")
)
