package api

import "errors"

var (
	ErrInvalidInput       = errors.New("api: invalid input")
	ErrInvalidStatus      = errors.New("api: invalid account status")
	ErrPasswordTooShort   = errors.New("api: new password must be at least 8 characters")
	ErrRefreshUnsupported = errors.New("api: path set has no refresh endpoint")
	ErrUnsupported        = errors.New("api: operation not supported by this path set")
	ErrNilDispatcher      = errors.New("api: nil dispatcher")
)

// MinPasswordLength is the shortest password RotatePassword accepts.
const MinPasswordLength = 8
