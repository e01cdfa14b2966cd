package mkimg

import "errors"

var (
	// ErrValidation is returned for arguments which can never succeed, such
	// as a scan root which is not a directory or an odd mapping list.
	ErrValidation = errors.New("validation error")

	// ErrInvalidPath is returned for paths which are not valid UTF-8.
	ErrInvalidPath = errors.New("invalid path")

	// ErrTraversal wraps errors encountered while walking a source tree.
	ErrTraversal = errors.New("directory traversal error")
)
