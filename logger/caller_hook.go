package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// framesSkipped lists function prefixes that never count as the call site.
var framesSkipped = []string{
	"github.com/sirupsen/logrus",
	"marketdb/logger.",
}

// callerHook rewrites entry.Caller to the first frame outside logrus and the
// wrappers in this package, so file:line in every line points at the build code.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !skippedFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func skippedFrame(fn string) bool {
	for _, prefix := range framesSkipped {
		if strings.HasPrefix(fn, prefix) {
			return true
		}
	}
	return false
}
