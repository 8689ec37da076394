package upload

import "errors"

var (
	ErrTooLarge        = errors.New("photo exceeds size limit")
	ErrEmpty           = errors.New("photo is empty")
	ErrUnsupportedType = errors.New("photo type not allowed")
	ErrSizeMismatch    = errors.New("photo size does not match declared size")
	ErrCorrupt         = errors.New("photo content does not match its type")
)
