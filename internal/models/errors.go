package models

import "errors"

var (
	ErrInvalidStockCode = errors.New("invalid stock code: must be 6 digits")
	ErrEmptyHeadline    = errors.New("headline cannot be empty")
	ErrHeadlineTooLong  = errors.New("headline exceeds 500 characters")
	ErrInvalidURL       = errors.New("article URL must be absolute")
	ErrURLTooLong       = errors.New("article URL exceeds 1000 characters")
	ErrInvalidScore     = errors.New("sentiment score must be in [0,100]")
)
