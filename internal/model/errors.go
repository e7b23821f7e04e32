package model

import "errors"

// Error kinds surfaced by the detection pipeline. Callers match them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrDecode     = errors.New("decode failure")
	ErrEncode     = errors.New("encode failure")
	ErrValidation = errors.New("validation failure")
	ErrConflict   = errors.New("already exists")
	ErrForbidden  = errors.New("forbidden")
)
