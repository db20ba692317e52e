package cli

import "errors"

// Common CLI errors
var (
	ErrNoConfig      = errors.New("no configuration file - pass --config or set " + EnvConfig)
	ErrInvalidConfig = errors.New("configuration is invalid")
	ErrNoMessage     = errors.New("no message - pass it as arguments or on stdin")
)
