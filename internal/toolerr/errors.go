// Package toolerr defines the error categories reported to tool callers.
package toolerr

import (
	"errors"
	"fmt"
)

// Category is the coarse failure class attached to every tool error.
type Category string

const (
	CategoryConfiguration Category = "ConfigurationError"
	CategoryValidation    Category = "ValidationError"
	CategoryConnection    Category = "ConnectionError"
	CategoryDriver        Category = "DriverError"
	CategoryCapacity      Category = "CapacityError"
)

var (
	ErrUnknownDatabase = errors.New("unknown database")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrUnknownTable    = errors.New("unknown table")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrNoFilter        = errors.New("at least one filter is required")
	ErrNoWhere         = errors.New("update requires at least one where field")
	ErrNotSelect       = errors.New("only a single SELECT statement is allowed")
	ErrNotConnected    = errors.New("database not connected")
)

// Error carries a category alongside the operation that failed.
type Error struct {
	Category Category
	Op       string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(c Category, op string, err error, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Category: c, Op: op, Msg: msg, Err: err}
}

// Configuration reports an unknown database or missing DSN/credential setting.
func Configuration(op string, err error, format string, args ...any) *Error {
	return newError(CategoryConfiguration, op, err, format, args...)
}

// Validation reports malformed or insufficient tool arguments.
func Validation(op string, err error, format string, args ...any) *Error {
	return newError(CategoryValidation, op, err, format, args...)
}

// Connection reports a session the driver no longer considers usable.
func Connection(op string, err error) *Error {
	return &Error{Category: CategoryConnection, Op: op, Err: err}
}

// Driver reports any other failure raised by the driver.
func Driver(op string, err error) *Error {
	return &Error{Category: CategoryDriver, Op: op, Err: err}
}

// Capacity reports a result that cannot be fetched safely.
func Capacity(op string, format string, args ...any) *Error {
	return newError(CategoryCapacity, op, nil, format, args...)
}

// CategoryOf returns the category of the first *Error in err's chain.
// Errors that carry no category are reported as driver errors.
func CategoryOf(err error) Category {
	var te *Error
	if errors.As(err, &te) {
		return te.Category
	}
	return CategoryDriver
}

// Is reports whether err carries category c.
func Is(err error, c Category) bool {
	return err != nil && CategoryOf(err) == c
}
