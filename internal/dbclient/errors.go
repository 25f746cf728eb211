package dbclient

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers unreachable hosts, auth failures and pool timeouts.
	ErrConnection = errors.New("dbclient: connection failed")
	// ErrQuery covers rejected statements and execution faults.
	ErrQuery = errors.New("dbclient: query failed")
)

// Op names the step of a tick that failed.
type Op string

const (
	OpAcquire Op = "acquire"
	OpPrepare Op = "prepare"
	OpQuery   Op = "query"
)

// Error wraps a driver error with the step it happened in. It matches
// ErrConnection or ErrQuery with errors.Is, as well as the cause.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dbclient: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.class(), e.Err}
}

func (e *Error) class() error {
	if e.Op == OpAcquire {
		return ErrConnection
	}
	return ErrQuery
}
