// Package errs is the error type used throughout datatalk.
//
// The design follows the upspin/diygoapi style: an error carries the
// operation that produced it, a Kind that classifies it, and optionally the
// parameter it relates to. Errors are built with E and nested as they travel
// up the call stack, each layer adding its own Op.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Op describes an operation, usually as "Type.Method".
type Op string

// Parameter names the request parameter related to the error.
type Parameter string

// Code is a short machine readable error code.
type Code string

// Kind classifies an error.
type Kind uint8

const (
	Other           Kind = iota // Unclassified error.
	Invalid                     // Invalid operation for this type of item.
	IO                          // External I/O error such as network failure.
	Exist                       // Item already exists.
	NotExist                    // Item does not exist.
	Internal                    // Internal error or inconsistency.
	Database                    // Error from database.
	Validation                  // Input validation error.
	InvalidRequest              // Invalid request body or parameters.
	Unauthenticated             // Missing or invalid credentials.
	Unauthorized                // Not allowed to perform the operation.
	Busy                        // Another operation is already in flight.
	Precondition                // Operation is not allowed in the current state.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid operation"
	case IO:
		return "I/O error"
	case Exist:
		return "item already exists"
	case NotExist:
		return "item does not exist"
	case Internal:
		return "internal error"
	case Database:
		return "database error"
	case Validation:
		return "input validation error"
	case InvalidRequest:
		return "invalid request error"
	case Unauthenticated:
		return "unauthenticated request"
	case Unauthorized:
		return "unauthorized request"
	case Busy:
		return "operation in progress"
	case Precondition:
		return "precondition failed"
	}

	return "unknown error kind"
}

// Error is the type that implements the error interface.
type Error struct {
	Op    Op
	Kind  Kind
	Param Parameter
	Code  Code
	Err   error
}

func (e *Error) isZero() bool {
	return e.Op == "" && e.Kind == 0 && e.Param == "" && e.Code == "" && e.Err == nil
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		b.WriteString(string(e.Op))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Param != "" {
		pad(b, ": ")
		b.WriteString("parameter ")
		b.WriteString(string(e.Param))
	}

	if e.Err != nil {
		var prev *Error
		if errors.As(e.Err, &prev) {
			if !prev.isZero() {
				pad(b, ":\n\t")
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}

	if b.Len() == 0 {
		return "no error"
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}

	b.WriteString(str)
}

// E builds an error value from its arguments. The type of each argument
// determines its meaning; an error argument is wrapped, a string is used as
// the underlying error text. If the wrapped error is itself an *Error with the
// same Kind, the inner Kind is cleared so it is only reported once.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}

	e := &Error{}

	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case Parameter:
			e.Param = arg
		case Code:
			e.Code = arg
		case string:
			e.Err = Str(arg)
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			return fmt.Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	if prev.Kind == e.Kind {
		prev.Kind = Other
	}

	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}

	return e
}

// Str returns an error that formats as the given text.
func Str(text string) error {
	return &errorString{text}
}

type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// KindIs reports whether err is an *Error of the given Kind. Nested errors
// are searched until a non-Other kind is found.
func KindIs(kind Kind, err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	if e.Kind != Other {
		return e.Kind == kind
	}

	if e.Err != nil {
		return KindIs(kind, e.Err)
	}

	return false
}

// KindOf returns the first non-Other kind found in the chain.
func KindOf(err error) Kind {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind != Other {
			return e.Kind
		}

		err = e.Err
	}

	return Other
}

// OpStack returns the ops of the nested errors, outermost first.
func OpStack(err error) []string {
	var ops []string

	var e *Error
	for errors.As(err, &e) {
		if e.Op != "" {
			ops = append(ops, string(e.Op))
		}

		err = e.Err
	}

	return ops
}

// Msg returns the innermost error text, which is what a user should see.
func Msg(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	for errors.As(err, &e) {
		if e.Err == nil {
			return e.Kind.String()
		}

		err = e.Err
	}

	return err.Error()
}
