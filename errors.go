package otpauth

import "errors"

var (
	// ErrEngineNotReady is returned by Engine methods on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig wraps every problem reported by [Config.Validate].
	ErrInvalidConfig = errors.New("invalid config")
	// ErrBuilderUsed is returned by a second call to [Builder.Build].
	ErrBuilderUsed = errors.New("builder already used")
	// ErrBackendRequired is returned by [Builder.Build] without a challenge backend.
	ErrBackendRequired = errors.New("challenge backend required")
	// ErrClientIDInvalid is returned for a client ID that is not a UUID.
	ErrClientIDInvalid = errors.New("invalid client id")
)
