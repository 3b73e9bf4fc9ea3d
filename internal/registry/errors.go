package registry

import "errors"

// Registry errors
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotRegistered    = errors.New("service not registered")
	ErrPermissionDenied = errors.New("permission denied")
)
