package vm

import (
	"errors"
	"fmt"

	"github.com/jinjacore/dbtjinja/internal/ast"
)

var (
	errStackUnderflow  = errors.New("stack underflow")
	errFrameOverflow   = errors.New("template recursion limit exceeded")
	errIncludeOverflow = errors.New("include recursion limit exceeded")
	errBreak           = errors.New("break")
	errContinue        = errors.New("continue")
)

// Kind classifies a runtime Error for host-facing error handling.
type Kind uint8

const (
	KindSyntax Kind = iota
	KindUndefined
	KindInvalidOperation
	KindUnknownFunction
	KindUnknownFilter
	KindUnknownTest
	KindTemplateNotFound
	KindRecursionLimit
	KindFuelExhausted
)

// Error is the typed error every failure path in this package returns,
// carrying the originating file and span so hosts can render a caret
// diagnostic.
type Error struct {
	Kind    Kind
	Message string
	File    string
	Span    ast.Span
	Stack   []Frame // file-stack snapshot at the point of failure, innermost last
}

func (e *Error) Error() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Span.Start.Line, e.Span.Start.Col, e.Message)
}

func (vm *VM) errorf(kind Kind, span ast.Span, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		File:    vm.currentFile(),
		Span:    span,
		Stack:   vm.snapshotFrames(),
	}
}

func (vm *VM) snapshotFrames() []Frame {
	out := make([]Frame, len(vm.frames))
	copy(out, vm.frames)
	return out
}

func (vm *VM) currentFile() string {
	if len(vm.frames) == 0 {
		return ""
	}
	return vm.frames[len(vm.frames)-1].File
}
