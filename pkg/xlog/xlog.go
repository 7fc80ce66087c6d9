// Package xlog is a leveled printf-style wrapper over zap.
package xlog

import (
	"fmt"
	"os"
	"strings"
)

type Logger struct {
	level int
}

const (
	TRACE = iota
	DEBUG
	INFO
	WARNING
	ERROR
	FATAL
)

var levelNames = []string{
	"TRACE",
	"DEBUG",
	"INFO",
	"WARNING",
	"ERROR",
	"FATAL",
}

var levelTags = []string{"[TRC]", "[DBG]", "[INF]", "[WRN]", "[ERR]", "[FTL]"}

var _logger *Logger

func GetLogger() *Logger {
	if _logger != nil {
		return _logger
	}

	level := INFO
	switch strings.ToUpper(os.Getenv("XLOG_LVL")) {
	case "T", "TRC", "TRACE":
		level = TRACE
	case "D", "DBG", "DEBUG":
		level = DEBUG
	case "I", "INF", "INFO":
		level = INFO
	case "W", "WRN", "WARNING":
		level = WARNING
	case "E", "ERR", "ERROR":
		level = ERROR
	case "F", "FTL", "FATAL":
		level = FATAL
	}

	_logger = &Logger{level: level}
	return _logger
}

func (s *Logger) SetLevel(level string) {
	for i, v := range levelNames {
		if v == level {
			s.level = i
			s.Infof("set xlog level to %s", level)
			return
		}
	}

	s.Infof("set xlog level to %s failed", level)
}

func (s *Logger) GetLevel() int {
	return s.level
}

func (s *Logger) logf(level int, format string, args ...interface{}) {
	if level < s.level {
		return
	}

	msg := fmt.Sprintf("%s %s", levelTags[level], fmt.Sprintf(format, args...))
	switch level {
	case TRACE, DEBUG:
		Zap.Debug(msg, FileField())
	case INFO:
		Zap.Info(msg, FileField())
	case WARNING:
		Zap.Warn(msg, FileField())
	case ERROR:
		Zap.Error(msg, FileField())
	case FATAL:
		Zap.Fatal(msg, FileField())
	}
}

func (s *Logger) Trace(args ...interface{})   { s.logf(TRACE, "%s", joinArgs(args)) }
func (s *Logger) Debug(args ...interface{})   { s.logf(DEBUG, "%s", joinArgs(args)) }
func (s *Logger) Info(args ...interface{})    { s.logf(INFO, "%s", joinArgs(args)) }
func (s *Logger) Warning(args ...interface{}) { s.logf(WARNING, "%s", joinArgs(args)) }
func (s *Logger) Error(args ...interface{})   { s.logf(ERROR, "%s", joinArgs(args)) }

func (s *Logger) Tracef(format string, args ...interface{}) { s.logf(TRACE, format, args...) }
func (s *Logger) Debugf(format string, args ...interface{}) { s.logf(DEBUG, format, args...) }
func (s *Logger) Infof(format string, args ...interface{})  { s.logf(INFO, format, args...) }
func (s *Logger) Warningf(format string, args ...interface{}) {
	s.logf(WARNING, format, args...)
}
func (s *Logger) Errorf(format string, args ...interface{}) { s.logf(ERROR, format, args...) }

func (s *Logger) Fatal(args ...interface{}) {
	s.logf(FATAL, "%s", joinArgs(args))
	os.Exit(1)
}

func (s *Logger) Fatalf(format string, args ...interface{}) {
	s.logf(FATAL, format, args...)
	os.Exit(1)
}

func joinArgs(args []interface{}) string {
	s := fmt.Sprintf("%v", args)
	if len(s) <= 2 {
		return s
	}
	return s[1 : len(s)-1]
}
