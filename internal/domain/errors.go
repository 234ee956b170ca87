package domain

import "errors"

var (
	ErrNotFound           = errors.New("calculation not found")
	ErrEmptyJustification = errors.New("override justification must not be empty")
	ErrTerminalState      = errors.New("approval status is terminal")
	ErrStaleVersion       = errors.New("stale calculation version")
	ErrUnknownField       = errors.New("field is not overridable")
	ErrBadTransition      = errors.New("approval transition not allowed")
)
