// Package kfmt provides the kernel's logging and panic facilities.
//
// All kernel subsystems log through per-module logrus entries obtained via
// Module. Until SetOutputSink is called, log output is retained in a small
// in-memory buffer so that messages emitted while the kernel boots are not
// lost; the buffered output is replayed once a sink becomes available.
package kfmt

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// earlyLog captures log output before an output sink is attached.
	earlyLog earlyBuffer

	logger = newLogger()

	sinkMu     sync.Mutex
	outputSink io.Writer
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&earlyLog)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
		DisableQuote:     true,
	})
	return l
}

// Module returns a log entry tagged with the name of the kernel module that
// emits it.
func Module(name string) *logrus.Entry {
	return logger.WithField("module", name)
}

// Logger returns the kernel logger.
func Logger() *logrus.Logger {
	return logger
}

// SetOutputSink sets the target for all log output to w and replays any
// output accumulated before a sink was attached. Passing nil detaches the
// current sink and resumes buffering.
func SetOutputSink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	outputSink = w
	if w == nil {
		logger.SetOutput(&earlyLog)
		return
	}

	logger.SetOutput(w)
	earlyLog.WriteTo(w)
}

// GetOutputSink returns the currently attached output sink or nil if log
// output is still being buffered.
func GetOutputSink() io.Writer {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	return outputSink
}

// SetLevel parses and applies a log level name such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}
