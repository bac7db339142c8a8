// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package er implements the typed-error convention used throughout this
// module: every fallible function returns an er.R rather than the bare
// error interface, and every package that has its own failure modes
// declares an ErrorType with one ErrorCode per kind rather than ad-hoc
// sentinel errors or fmt.Errorf strings.
package er

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime/debug"
	"strings"
)

// GenericErrorType is for packages with only one or two error codes which
// don't make sense having their own error type.
var GenericErrorType = NewErrorType("er.GenericErrorType")

var ErrUnexpectedEOF = GenericErrorType.CodeWithDefault("ErrUnexpectedEOF", io.ErrUnexpectedEOF)
var EOF = GenericErrorType.CodeWithDefault("EOF", io.EOF)

// ErrorCode identifies a particular fault within an ErrorType.
type ErrorCode struct {
	Detail         string
	Type           *ErrorType
	defaultWrapped error
}

type typedErr struct {
	messages []string
	errType  *ErrorType
	code     *ErrorCode
	err      R
}

// ErrorType groups a family of related ErrorCodes under one name.
type ErrorType struct {
	Name  string
	Codes []*ErrorCode
}

// NewErrorType creates a new error type identified by name, e.g.
// var Err = er.NewErrorType("txstore.Err")
func NewErrorType(ident string) ErrorType {
	return ErrorType{Name: ident}
}

func (c *ErrorCode) Is(err R) bool {
	if err == nil {
		return c == nil
	}
	if te, ok := err.(typedErr); ok {
		return te.code == c
	}
	return false
}

func (c *ErrorCode) new(info string, err R, bstack []byte) R {
	var messages []string
	if info == "" {
		messages = []string{c.Detail}
	} else {
		messages = []string{c.Detail, info}
	}
	if err == nil {
		if bstack == nil {
			bstack = captureStack()
		}
		err = newErr("", bstack)
	} else if te, ok := err.(typedErr); ok {
		if te.code == c {
			if info != "" {
				te.messages = append(messages, te.messages...)
			}
			return te
		}
	}
	return typedErr{messages: messages, errType: c.Type, code: c, err: err}
}

// New builds an R of this code wrapping an optional cause.
func (c *ErrorCode) New(info string, err R) R {
	if err == nil {
		return c.new(info, nil, captureStack())
	}
	return c.new(info, err, nil)
}

// Default builds an R of this code with no extra message.
func (c *ErrorCode) Default() R {
	if c.defaultWrapped != nil {
		return c.new("", ee(c.defaultWrapped), nil)
	}
	return c.new("", nil, captureStack())
}

func (e *ErrorType) Is(err R) bool {
	if err == nil {
		return false
	}
	te, ok := err.(typedErr)
	return ok && te.errType == e
}

func (e *ErrorType) newCode(info, detail string) *ErrorCode {
	header := info
	if detail != "" {
		header = header + ": " + detail
	}
	result := &ErrorCode{Detail: header, Type: e}
	e.Codes = append(e.Codes, result)
	return result
}

// Code declares a new error code under this type.
func (e *ErrorType) Code(info string) *ErrorCode {
	return e.newCode(info, "")
}

// CodeWithDetail declares a new error code with a fixed detail suffix.
func (e *ErrorType) CodeWithDetail(info, detail string) *ErrorCode {
	return e.newCode(info, detail)
}

// CodeWithDefault declares a code that defaults to wrapping a given stdlib
// sentinel error (e.g. io.EOF) when built with Default().
func (e *ErrorType) CodeWithDefault(info string, defaultError error) *ErrorCode {
	ec := e.newCode(info, "")
	ec.defaultWrapped = defaultError
	return ec
}

func (te typedErr) AddMessage(m string) {
	te.messages = append([]string{m}, te.messages...)
}

func (te typedErr) Message() string {
	tem := te.err.Message()
	if tem == "" {
		return strings.Join(te.messages, ": ")
	}
	return fmt.Sprintf("%s: %s", strings.Join(te.messages, ": "), tem)
}

func (te typedErr) HasStack() bool { return te.err.HasStack() }
func (te typedErr) Stack() []string { return te.err.Stack() }

func (te typedErr) String() string {
	s := ""
	if te.err.HasStack() {
		s = "\n\n" + strings.Join(te.err.Stack(), "\n") + "\n"
	}
	return te.Message() + s
}

func (te typedErr) Error() string { return te.String() }

// Code returns the ErrorCode this R was built with, or nil if it is a plain
// (untyped) R produced by er.New / er.E.
func Code(err R) *ErrorCode {
	if te, ok := err.(typedErr); ok {
		return te.code
	}
	return nil
}

// R is the error interface returned from every fallible function in this
// module.
type R interface {
	Message() string
	Stack() []string
	HasStack() bool
	String() string
	AddMessage(m string)
}

type errImpl struct {
	messages []string
	e        error
	bstack   []byte
	stack    []string
}

func (e errImpl) HasStack() bool { return e.bstack != nil }

func (e errImpl) Stack() []string {
	if e.stack == nil {
		s := strings.Split(string(e.bstack), "\n")
		if len(s) > 5 {
			s = s[5:]
		}
		var stack []string
		for i := range s {
			x := "  " + strings.TrimSpace(s[i])
			if x != "  " {
				stack = append(stack, x)
			}
		}
		e.stack = stack
	}
	return e.stack
}

func (e errImpl) AddMessage(m string) {
	if e.messages == nil {
		e.messages = []string{m, e.e.Error()}
	} else {
		e.messages = append([]string{m}, e.messages...)
	}
}

func (e errImpl) Message() string {
	if e.messages == nil {
		return e.e.Error()
	}
	return strings.Join(e.messages, ", ")
}

func (e errImpl) String() string {
	s := ""
	if e.bstack != nil {
		s = "\n\n" + strings.Join(e.Stack(), "\n") + "\n"
	}
	return e.Message() + s
}

func (e errImpl) Error() string { return e.String() }

func captureStack() []byte { return debug.Stack() }

func newErr(s string, bstack []byte) R {
	return errImpl{e: errors.New(s), bstack: bstack}
}

// New builds an untyped R carrying a message and a captured stack.
func New(s string) R {
	return newErr(s, captureStack())
}

// Errorf builds an untyped R the way fmt.Errorf builds an error.
func Errorf(format string, a ...interface{}) R {
	return errImpl{e: fmt.Errorf(format, a...), bstack: captureStack()}
}

func ee(e error) R {
	return errImpl{e: e, bstack: captureStack()}
}

// E wraps a native error (e.g. from encoding/gob, os, io) into an R.
func E(e error) R {
	if e == nil {
		return nil
	}
	switch e {
	case io.ErrUnexpectedEOF:
		return ErrUnexpectedEOF.Default()
	case io.EOF:
		return EOF.Default()
	default:
		return ee(e)
	}
}

func equals(e, r R, fuzzy bool) bool {
	if e == nil || r == nil {
		return e == nil && r == nil
	}
	if te, ok := e.(typedErr); ok {
		tr, ok := r.(typedErr)
		return ok && te.code == tr.code
	}
	ee1, ok1 := e.(errImpl)
	ee2, ok2 := r.(errImpl)
	if ok1 && ok2 {
		if ee1.e == ee2.e {
			return true
		}
		if fuzzy {
			return reflect.TypeOf(ee1.e) == reflect.TypeOf(ee2.e)
		}
	}
	return false
}

// Equals reports whether two R values were built from the same ErrorCode
// (or, for untyped errors, the exact same wrapped error value).
func Equals(e, r R) bool { return equals(e, r, false) }

// FuzzyEquals is like Equals but for untyped errors only requires the
// wrapped errors to share a dynamic type.
func FuzzyEquals(e, r R) bool { return equals(e, r, true) }

var errLoopBreak = errors.New("loop break (if you're seeing this error, it should have been caught)")

// LoopBreak is a sentinel (non-)error used to break out of a ForEach-style
// iteration early without it being treated as a real failure.
var LoopBreak = E(errLoopBreak)

// IsLoopBreak reports whether err is the LoopBreak sentinel.
func IsLoopBreak(err R) bool {
	en, ok := err.(errImpl)
	return ok && en.e == errLoopBreak
}
