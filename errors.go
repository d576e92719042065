package mimir

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrEmptyMembers     = errors.New("empty members")
	ErrNotMultisig      = errors.New("not a multisig account")
	ErrTerminalStatus   = errors.New("transaction already in terminal status")
	ErrStatusRegression = errors.New("transaction status cannot move backwards")
	ErrInvalidCursor    = errors.New("invalid cursor")
)

// InvalidAddressError rejects a single malformed address input.
type InvalidAddressError struct {
	Input  string
	Reason string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

func invalidAddress(input, format string, args ...any) error {
	return &InvalidAddressError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// MalformedCallError reports a recognised wrapper call whose arguments
// could not be unwrapped.
type MalformedCallError struct {
	Section string
	Method  string
	Arg     string
	Err     error
}

func (e *MalformedCallError) Error() string {
	msg := fmt.Sprintf("malformed call %s.%s", e.Section, e.Method)
	if e.Arg != "" {
		msg += fmt.Sprintf(" (arg %s)", e.Arg)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *MalformedCallError) Unwrap() error {
	return e.Err
}

// CyclicGraphError is raised when a member or delegate chain revisits an
// address that is already on the current path. Address closed the cycle.
type CyclicGraphError struct {
	Network string
	Address Address
	Path    []Address
}

func (e *CyclicGraphError) Error() string {
	parts := make([]string, 0, len(e.Path)+1)
	for _, addr := range e.Path {
		parts = append(parts, addr.String())
	}

	parts = append(parts, e.Address.String())
	return fmt.Sprintf("cyclic account graph on %s: %s", e.Network, strings.Join(parts, " -> "))
}

// ResponseError is a well-formed error response returned by a remote service.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

func IsResponseError(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}
