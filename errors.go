package ctadmin

import (
	"errors"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/session"
)

var (
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrClientClosed is returned by Client operations after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrNotAuthenticated is returned by operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrEmptyCredentials is returned by Login when username or password is blank.
	ErrEmptyCredentials = errors.New("username and password are required")
	// ErrRefreshUnsupported is returned by Refresh in token mode.
	ErrRefreshUnsupported = api.ErrRefreshUnsupported
	// ErrUnmounted is returned by session commands after Unmount.
	ErrUnmounted = session.ErrUnmounted
)
