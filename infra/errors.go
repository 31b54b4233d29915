package infra

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTimeout = errors.New("timeout error")
	ErrNetwork = errors.New("network error")
)

func NewTimeoutError(details string) error {
	return fmt.Errorf("%w: %s", ErrTimeout, details)
}

func NewNetworkError(details string) error {
	return fmt.Errorf("%w: %s", ErrNetwork, details)
}

// WrapTimeout tags cause as a timeout while keeping it in the chain.
func WrapTimeout(details string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrTimeout, details, cause)
}

// WrapNetwork tags cause as a network failure while keeping it in the chain.
func WrapNetwork(details string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrNetwork, details, cause)
}

// IsRetriable returns true if the error is timeout or network, so retry makes sense.
// A cancelled caller context is never retriable.
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork)
}
