// Package debug provides build-tag gated assertions used throughout the
// core. With the "debug" build tag absent, every call here is a no-op.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package debug

import "fmt"

// Enabled reports whether debug assertions are compiled in. Overridden by
// the debug_on.go file under the "debug" build tag.
var Enabled = false

func Assert(cond bool, args ...interface{}) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintln(append([]interface{}{"assertion failed:"}, args...)...))
}

func Assertf(cond bool, format string, args ...interface{}) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintf("assertion failed: "+format, args...))
}

func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
}

func AssertMsg(cond bool, msg string) {
	if !Enabled || cond {
		return
	}
	panic("assertion failed: " + msg)
}
