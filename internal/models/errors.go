package models

import "errors"

var (
	// ErrInvalidArgument marks programming errors such as an unknown message kind.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrVersionConflict is returned by stores when a compare-and-swap loses a race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists is returned by stores when a lazy create races another create.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound is returned by services when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
)
