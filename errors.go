package aggregator

import (
	"fmt"
)

// DuplicateKeyError occurs when a reduction is registered under a key that
// already exists in the Registry
type DuplicateKeyError struct{ Key string }

// Error returns a textual representation of this DuplicateKeyError
func (e DuplicateKeyError) Error() string {
	return fmt.Sprintf("Reduction %q is already registered", e.Key)
}

// EmptyKeyError occurs when a reduction or periodic schedule is registered
// with an empty key
type EmptyKeyError struct{}

// Error returns a textual representation of this EmptyKeyError
func (e EmptyKeyError) Error() string {
	return "Key cannot be empty"
}

// NegativePeriodError occurs when AggregatePeriodic is called with a period
// less than zero
type NegativePeriodError struct{ Key string }

// Error returns a textual representation of this NegativePeriodError
func (e NegativePeriodError) Error() string {
	return fmt.Sprintf("Period for key %q cannot be negative", e.Key)
}

// UnregisteredKeyError occurs when AggregatePeriodic is called with a key
// that has no Reduction registered under it.
type UnregisteredKeyError struct{ Key string }

// Error returns a textual representation of this UnregisteredKeyError
func (e UnregisteredKeyError) Error() string {
	return fmt.Sprintf("Key %q has no registered reduction", e.Key)
}

// unknownKeyPanic is raised when a hot-path operation (AggregateNow, or an
// RPC entry point driving the async state machine) is given a key that was
// never registered. This is a programmer error, not a recoverable condition,
// so it is a panic rather than a returned error.
func unknownKeyPanic(key string) {
	panic(fmt.Sprintf("aggregator: unknown key %q", key))
}

// countdownCorruptionPanic is raised when a countdown is observed outside of
// its legal bounds, which indicates a double-decrement or missed reset bug.
func countdownCorruptionPanic(name string, key string, value int) {
	panic(fmt.Sprintf("aggregator: %s countdown for key %q corrupted: %d", name, key, value))
}
