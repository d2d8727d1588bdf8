// Package dberrors provides structured errors for every layer of docbase:
// the codec, the page layout, the database file, the buffer pool, and the
// storage engine facade.
package dberrors

import (
	"fmt"
	"runtime"
	"strings"
)

// Category classifies a DBError by which layer raised it and how a caller
// should generally react to it.
type Category int

const (
	// CategoryCodec covers document encode/decode violations.
	CategoryCodec Category = iota
	// CategoryPage covers page-layout violations (slots, space, checksum).
	CategoryPage
	// CategoryFile covers database-file I/O and format errors.
	CategoryFile
	// CategoryPool covers buffer-pool capacity and lookup errors.
	CategoryPool
	// CategoryFacade covers storage-engine facade errors.
	CategoryFacade
)

func (c Category) String() string {
	switch c {
	case CategoryCodec:
		return "CODEC"
	case CategoryPage:
		return "PAGE"
	case CategoryFile:
		return "FILE"
	case CategoryPool:
		return "POOL"
	case CategoryFacade:
		return "FACADE"
	default:
		return "UNKNOWN"
	}
}

// DBError is a structured error carrying the context callers need:
// a stable code, the layer it originated in, the operation being
// performed, and an optional wrapped cause.
type DBError struct {
	Code      string
	Category  Category
	Message   string
	Detail    string
	Operation string
	Component string
	Cause     error
	Stack     []uintptr
}

// New creates a DBError with the given category, code, and message.
func New(category Category, code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Wrap attaches operation/component context to err. If err is already a
// *DBError, the existing error is enriched in place (only filling blank
// fields) rather than being re-wrapped.
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	if dbErr, ok := err.(*DBError); ok {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  CategoryFacade,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// WithDetail returns e with Detail set, for fluent construction at the
// call site: `return nil, dberrors.ErrNotFound.WithDetail("slot 3")`.
func (e *DBError) WithDetail(detail string) *DBError {
	clone := *e
	clone.Detail = detail
	clone.Stack = captureStack()
	return &clone
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the error interface.
//
// [CODE] Message: Detail (operation: Op, component: Component) caused by: cause
func (e *DBError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap enables errors.Is / errors.As chains through Cause.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match against a sentinel DBError by Code, ignoring
// Detail/Operation/Component/Cause/Stack so a wrapped, enriched error
// still compares equal to its undecorated sentinel.
func (e *DBError) Is(target error) bool {
	other, ok := target.(*DBError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// FormatStack renders the captured call stack for debugging.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}
