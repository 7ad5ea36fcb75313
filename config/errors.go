package config

import (
	"errors"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	ErrInvalidStructure  = errors.New("env: expected pointer to struct")
	ErrFieldCannotBeSet  = errors.New("field cannot be set")
	ErrEmptyPrefix       = errors.New("env: prefix cannot be empty")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
