// Package logging is the node-wide logger. It pairs logrus's structured
// entries with a fatih/color formatter so level tags stay readable on a
// terminal without giving up WithField-style structured context.
package logging

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&colorFormatter{})
	l.SetLevel(logrus.TraceLevel)
	return l
}

// SetOutput redirects the logger, mainly for tests that want to silence it.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// colorFormatter renders "<time> <LEVEL> <msg> key=val ..." with the level
// tag colorized the way the teacher's shared/logging package did it.
type colorFormatter struct{}

func (f *colorFormatter) Format(e *logrus.Entry) ([]byte, error) {
	tag := levelTag(e.Level)

	line := fmt.Sprintf("%s %s %s", e.Time.Format("2006-01-02 15:04:05"), tag, e.Message)
	for k, v := range e.Data {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	line += "\n"

	return []byte(line), nil
}

func levelTag(l logrus.Level) string {
	switch l {
	case logrus.TraceLevel:
		return color.CyanString("TRACE")
	case logrus.DebugLevel:
		return color.GreenString("DEBUG")
	case logrus.InfoLevel:
		return color.WhiteString("INFO")
	case logrus.WarnLevel:
		return color.YellowString("WARN")
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.RedString("ERROR")
	default:
		return string(rune(l))
	}
}

func Trace(msg string) { std.Trace(msg) }
func Debug(msg string) { std.Debug(msg) }
func Info(msg string)  { std.Info(msg) }
func Warn(msg string)  { std.Warn(msg) }
func Error(msg string) { std.Error(msg) }

func Tracef(format string, args ...interface{}) { std.Tracef(format, args...) }
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// Fields is a shorthand for structured call sites, e.g.
// logging.WithFields(logging.Fields{"term": 4, "role": "leader"}).Info("became leader")
type Fields = logrus.Fields

func WithFields(f Fields) *logrus.Entry {
	return std.WithFields(f)
}

func WithField(key string, val interface{}) *logrus.Entry {
	return std.WithField(key, val)
}
