// Package invariant provides contract assertions for the template engine.
//
// All functions panic on violation. A violation is a bug in the engine, never
// a problem with user input: malformed templates are reported through errors.
package invariant

import (
	"fmt"
	"reflect"
	"runtime"
)

// Precondition checks an input contract at function entry.
func Precondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Invariant checks an internal invariant during function execution,
// typically scanner progress.
//
//	prev := s.pos
//	s.step()
//	invariant.Invariant(s.pos > prev, "scanner must advance")
func Invariant(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// NotNil panics if value is nil, including a typed nil such as (*T)(nil).
func NotNil(value interface{}, name string) {
	if isNil(value) {
		fail("PRECONDITION", "%s must not be nil", name)
	}
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func fail(kind, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if _, file, line, ok := runtime.Caller(2); ok {
		panic(fmt.Sprintf("%s VIOLATION: %s\n  at %s:%d", kind, msg, file, line))
	}
	panic(fmt.Sprintf("%s VIOLATION: %s", kind, msg))
}
