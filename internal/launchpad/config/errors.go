package config

import "errors"

// Sentinel errors for internal use.
var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrMnemonicFileNotSet  = errors.New("mnemonic file path not configured")
	ErrKeyDerivation       = errors.New("key derivation failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Error codes — shared with API consumers via error responses.
const (
	ErrorInvalidConfig       = "ERROR_INVALID_CONFIG"
	ErrorDatabase            = "ERROR_DATABASE"
	ErrorProviderUnavailable = "ERROR_PROVIDER_UNAVAILABLE"
)
