package coordinator

import "errors"

var (
	ErrAlreadyRunning = errors.New("coordinator already running")
	ErrNotRunning     = errors.New("coordinator not running")
	ErrNilEvent       = errors.New("nil event")
)
