// SPDX-License-Identifier: GPL-3.0-or-later
package log

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggers   map[string]*logrus.Logger
	loggersMu sync.RWMutex
)

func NewPrefixLogger(prefix string) *PrefixLogger {
	stringPrefix := fmt.Sprintf("%s:\t", prefix)

	formatter := &logrus.TextFormatter{}
	formatter.FullTimestamp = true
	formatter.TimestampFormat = "15:04:05"
	formatter.DisableColors = strings.Contains(runtime.GOOS, "windows")
	return &PrefixLogger{
		formatter,
		[]byte(stringPrefix),
	}
}

type PrefixLogger struct {
	formatter logrus.Formatter
	prefix    []byte
}

func (f *PrefixLogger) Format(entry *logrus.Entry) ([]byte, error) {
	text, err := f.formatter.Format(entry)
	if err != nil {
		return nil, err
	}
	return append(f.prefix, text...), nil
}

const (
	LOG_MAIN        = "MA"
	LOG_TRIAGE      = "TR"
	LOG_FETCHER     = "FE"
	LOG_ARCHIVER    = "AR"
	LOG_REFINE      = "RE"
	LOG_MONITOR     = "MO"
	LOG_PERSISTENCE = "PI"
	LOG_IMAP        = "IM"
	LOG_CLASSIFIER  = "CL"
	LOG_CHECKPOINT  = "CP"
)

var allPrefixes = []string{
	LOG_MAIN,
	LOG_TRIAGE,
	LOG_FETCHER,
	LOG_ARCHIVER,
	LOG_REFINE,
	LOG_MONITOR,
	LOG_PERSISTENCE,
	LOG_IMAP,
	LOG_CLASSIFIER,
	LOG_CHECKPOINT,
}

func getLevel(loglevel string) logrus.Level {
	switch strings.ToLower(loglevel) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "panic":
		return logrus.PanicLevel
	case "fatal":
		return logrus.FatalLevel
	}

	// Info is default
	return logrus.InfoLevel
}

func newLogger(prefix, loglevel string) *logrus.Logger {
	l := logrus.New()
	l.Level = getLevel(loglevel)
	l.Formatter = NewPrefixLogger(prefix)
	return l
}

func InitLogging(loglevel string) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	loggers = make(map[string]*logrus.Logger)
	for _, prefix := range allPrefixes {
		loggers[prefix] = newLogger(prefix, loglevel)
	}
}

func SetLogLevel(loglevel string) {
	loggersMu.RLock()
	defer loggersMu.RUnlock()

	for _, v := range loggers {
		v.SetLevel(getLevel(loglevel))
	}
}

// Logger returns the logger for a component prefix. Packages are usable
// without InitLogging (tests, library use), so an uninitialised registry is
// filled lazily at info level.
func Logger(logger string) *logrus.Logger {
	loggersMu.RLock()
	l, ok := loggers[logger]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	known := false
	for _, p := range allPrefixes {
		if p == logger {
			known = true
			break
		}
	}
	if !known {
		panic("Logger " + logger + " unknown")
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if loggers == nil {
		loggers = make(map[string]*logrus.Logger)
	}
	if l, ok := loggers[logger]; ok {
		return l
	}
	l = newLogger(logger, "info")
	loggers[logger] = l
	return l
}
