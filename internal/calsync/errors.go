package calsync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means the user has no config row for the provider.
	ErrNotConnected = errors.New("Calendar not connected")
	// ErrSyncInProgress means another sync holds the (user, provider) lock.
	ErrSyncInProgress = errors.New("Sync already in progress")
	// ErrMissingCode is returned by ExchangeCode when no code is supplied.
	ErrMissingCode = errors.New("Missing authorization code")
)

// ConfigError reports OAuth client credentials that are not configured.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("OAuth credentials not configured: %v", e.Missing)
}

// ProviderError carries an upstream provider's own error text.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return e.Message
}
