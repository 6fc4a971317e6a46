package debug

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Caller returns the file:line of the first caller outside this module's
// packages, skipping skip additional frames. It is used to record where a
// constraint was declared so that proving errors can point back to user code.
func Caller(skip int) string {
	var pc [10]uintptr
	n := runtime.Callers(2+skip, pc[:])
	if n == 0 {
		return "unknown"
	}
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "ministark/air.") {
			file := frame.File
			if !Debug {
				file = filepath.Base(file)
			}
			return file + ":" + strconv.Itoa(frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}

// Assert does nothing if the debug build tag is not provided.
// If the debug build tag is provided, it panics if condition is false.
func Assert(condition bool, message ...string) {
	if !Debug {
		return
	}
	if !condition {
		if len(message) > 0 {
			panic(message[0])
		}
		panic("assertion failed")
	}
}
