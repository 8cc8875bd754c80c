package lib

import (
	"errors"

	"github.com/tuberip/tuberip/internal/model"
)

var (
	// ErrNotFound is returned when an item or a task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when the input is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrEmptySelection is returned when there is nothing to download.
	ErrEmptySelection = errors.New("empty selection")
	// ErrNotStarted is returned by the operations that need a running client session.
	ErrNotStarted = errors.New("client not started")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	case errors.Is(err, model.ErrEmptySelection):
		return joinErrors(err, ErrEmptySelection)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
